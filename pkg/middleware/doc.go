// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// The chain, outermost to innermost:
//
//	Recovery -> RequestID -> Logging -> Metrics -> FloodGuard -> Principal -> AccessLog -> Throttle -> handler
//
// Recovery converts panics to 500s. RequestID tags every request for log
// correlation. Principal resolves the acting user and attaches request
// metadata to the context. AccessLog records the final outcome of each
// request in the audit trail. Throttle enforces a per-route rate limit
// policy and is applied per route rather than globally.
package middleware
