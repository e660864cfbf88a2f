package httpapi

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"checkcx/internal/httputil"
	"checkcx/internal/logging"
	"checkcx/internal/snapshot"
)

const msgGroupNotFound = "分组不存在或没有配置"

// group handles GET /api/group/{groupName}: always-refresh read scoped to
// one group, or the ungrouped bucket when groupName is the sentinel.
// chi matches against the raw (still percent-encoded) path whenever the
// request carries one, so the segment is decoded here in that case and
// groupName always arrives as the caller's literal string.
func (h *handlers) group(w http.ResponseWriter, r *http.Request) {
	groupName := chi.URLParam(r, "groupName")
	if r.URL.RawPath != "" {
		if decoded, err := url.PathUnescape(groupName); err == nil {
			groupName = decoded
		}
	}

	data, err := h.aggregator.LoadGroupDashboardData(r.Context(), groupName, snapshot.RefreshAlways)
	if err != nil {
		h.logger.Error("group dashboard: load failed", zap.Error(err), logging.KindInternal.Field())
		httputil.RespondWithError(w, http.StatusInternalServerError, "未知错误")
		return
	}
	if data == nil {
		httputil.RespondWithError(w, http.StatusNotFound, msgGroupNotFound)
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, data)
}
