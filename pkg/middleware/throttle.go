package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"hireloop/gatehouse/pkg/throttle"
)

// Policy describes the rate limit applied to one route.
type Policy struct {
	// Action is the registered action name the route consumes quota for.
	Action string

	// Limit is the number of requests allowed per window.
	Limit int

	// WindowSeconds is the window length in seconds.
	WindowSeconds int
}

// Throttle enforces a rate limit policy on a route. Requests without a
// principal are rejected with 401 since quota is accounted per principal.
// When the quota check itself fails the request is rejected rather than
// waved through.
func Throttle(evaluator *throttle.Evaluator, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == "" {
				writeError(w, http.StatusUnauthorized, errorBody{
					Error: "authentication required",
				})
				return
			}

			decision, err := evaluator.CheckAndConsume(r.Context(), principal, policy.Action, policy.Limit, policy.WindowSeconds)
			if err != nil {
				slog.ErrorContext(r.Context(), "quota check failed, rejecting request",
					"principal_id", principal,
					"action", policy.Action,
					"error", err,
				)
				failClosed := &throttle.QuotaExceededError{WaitSeconds: 1}
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, errorBody{
					Error:       failClosed.Error(),
					WaitSeconds: failClosed.WaitSeconds,
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				var quotaErr *throttle.QuotaExceededError
				msg := "rate limit exceeded"
				if errors.As(decision.Err(), &quotaErr) {
					msg = quotaErr.Error()
				}

				w.Header().Set("Retry-After", strconv.Itoa(decision.WaitSeconds))
				writeError(w, http.StatusTooManyRequests, errorBody{
					Error:       msg,
					WaitSeconds: decision.WaitSeconds,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
