// Package metrics provides Prometheus metrics for gatehouse.
//
// The Collector registers and records all metrics for the service:
// throttle decisions, audit writes and drops, and HTTP request counts and
// latencies. It owns a prometheus.Registry and exposes an HTTP handler
// for the /metrics endpoint.
package metrics
