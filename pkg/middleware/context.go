package middleware

import (
	"context"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// Context keys for storing values in request context.
const (
	// RequestIDKey stores the unique request ID.
	RequestIDKey contextKey = "request_id"

	// StartTimeKey stores the request start time for latency calculation.
	StartTimeKey contextKey = "start_time"

	// PrincipalKey stores the principal ID extracted from headers.
	PrincipalKey contextKey = "principal_id"

	// RequestInfoKey stores the request metadata used by audit recording.
	RequestInfoKey contextKey = "request_info"
)

// RequestInfo carries the request metadata the audit trail records. It is
// stored in the context by the Principal middleware as a pointer so that
// inner handlers and outer middleware observe the same value.
type RequestInfo struct {
	// SourceAddr is the resolved client address.
	SourceAddr string

	// Path is the request path.
	Path string

	// Method is the HTTP method.
	Method string

	// DenialRecorded is set once a throttle denial for this request has
	// been written to the audit trail, so the access log does not record
	// the same request twice.
	DenialRecorded bool
}

// WithRequestInfo returns a context carrying the request info.
func WithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, RequestInfoKey, info)
}

// RequestInfoFromContext extracts the request info from the context.
// Returns nil if not present.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	if info, ok := ctx.Value(RequestInfoKey).(*RequestInfo); ok {
		return info
	}
	return nil
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetPrincipal extracts the principal ID from the context.
// Returns empty string for anonymous requests.
func GetPrincipal(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalKey).(string); ok {
		return principal
	}
	return ""
}

// GetStartTime extracts the request start time from the context.
// Returns zero time if not found.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
