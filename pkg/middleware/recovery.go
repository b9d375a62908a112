package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// errorBody is the JSON error payload returned by middleware.
type errorBody struct {
	Error       string `json:"error"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

// writeError writes a JSON error response with the given status.
func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Recovery recovers from panics in HTTP handlers and returns a 500 response.
// The panic and stack trace are logged but not exposed to clients.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				writeError(w, http.StatusInternalServerError, errorBody{
					Error: "internal server error",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
