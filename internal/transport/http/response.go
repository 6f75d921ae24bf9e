package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr echoes the chi request id so a client report can be matched to the log line.
func writeErr(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, apiError{
		Message:   msg,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
