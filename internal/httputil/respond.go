// Package httputil holds small JSON response helpers shared by every HTTP
// handler.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body shape for every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError sends a {"error": message} JSON body with the given status.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON writes payload as a JSON body with the given status code.
// Status codes that do not permit a body (1xx, 204, 304) get the headers
// only; payload is not written.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if code < 200 || code == http.StatusNoContent || code == http.StatusNotModified {
		return nil
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
