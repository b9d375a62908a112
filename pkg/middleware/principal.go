package middleware

import (
	"context"
	"net/http"
	"strings"
)

// PrincipalHeader is the HTTP header carrying the authenticated principal.
const PrincipalHeader = "X-Principal-ID"

// Principal resolves the acting principal and the client address for the
// request, and attaches both to the context. The principal comes from the
// X-Principal-ID header set by the authenticating frontend; an absent header
// means the request is anonymous. Anonymous requests are not rejected here,
// route policies decide what anonymity means for them.
//
// When trustProxyHeaders is set, the client address is taken from the first
// entry of X-Forwarded-For. Only enable this behind a proxy that overwrites
// the header.
func Principal(trustProxyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if principal := strings.TrimSpace(r.Header.Get(PrincipalHeader)); principal != "" {
				ctx = context.WithValue(ctx, PrincipalKey, principal)
			}

			info := &RequestInfo{
				SourceAddr: clientAddr(r, trustProxyHeaders),
				Path:       r.URL.Path,
				Method:     r.Method,
			}
			ctx = WithRequestInfo(ctx, info)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientAddr resolves the client address for a request.
func clientAddr(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if first, _, found := strings.Cut(fwd, ","); found || first != "" {
				return strings.TrimSpace(first)
			}
		}
	}
	return r.RemoteAddr
}
