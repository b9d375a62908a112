package middleware

import (
	"net/http"
	"strings"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/audit/recorder"
)

// AccessLog records the outcome of every request in the audit trail.
// Requests whose path starts with skipPrefix are not recorded, so reading
// the audit trail does not itself generate audit noise. Requests already
// recorded as throttle denials are skipped to avoid duplicate rows.
//
// Recording is fire-and-forget through the async recorder; a full buffer or
// failing store never affects the response.
func AccessLog(rec *recorder.Recorder, skipPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPrefix != "" && strings.HasPrefix(r.URL.Path, skipPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			info := RequestInfoFromContext(r.Context())
			if info == nil || info.DenialRecorded {
				return
			}

			rec.Record(r.Context(), &audit.Record{
				PrincipalID: GetPrincipal(r.Context()),
				SourceAddr:  info.SourceAddr,
				Path:        info.Path,
				Method:      info.Method,
				StatusCode:  rw.statusCode,
			})
		})
	}
}
