package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"checkcx/internal/httputil"
	"checkcx/internal/logging"
	"checkcx/internal/snapshot"
)

// dashboard handles GET /api/dashboard: always-refresh read of the full
// fleet, grouped and ungrouped.
func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.aggregator.LoadDashboardData(r.Context(), snapshot.RefreshAlways)
	if err != nil {
		h.logger.Error("dashboard: load failed", zap.Error(err), logging.KindInternal.Field())
		httputil.RespondWithError(w, http.StatusInternalServerError, "未知错误")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, data)
}
