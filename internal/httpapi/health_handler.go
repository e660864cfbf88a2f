package httpapi

import (
	"net/http"

	"checkcx/internal/httputil"
)

// health handles GET /healthz: pure process liveness, no database, Redis,
// or provider touch.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
