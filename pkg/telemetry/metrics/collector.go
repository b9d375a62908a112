package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records all Prometheus metrics for gatehouse.
//
// Metrics:
//   - gatehouse_throttle_decisions_total: throttle outcomes by action
//   - gatehouse_throttle_wait_seconds: wait time handed to denied callers
//   - gatehouse_audit_writes_total: audit sink writes by result
//   - gatehouse_audit_dropped_total: audit records dropped on a full buffer
//   - gatehouse_http_requests_total: HTTP requests by method, path, status
//   - gatehouse_http_request_duration_seconds: HTTP request latency
type Collector struct {
	registry *prometheus.Registry

	decisionsTotal *prometheus.CounterVec
	waitSeconds    prometheus.Histogram

	auditWrites  *prometheus.CounterVec
	auditDropped prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a metrics collector and registers all metrics with the
// provided registry. If registry is nil, a new registry is created.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "gatehouse"
	}

	c := &Collector{
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttle_decisions_total",
				Help:      "Total throttle decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		waitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "throttle_wait_seconds",
				Help:      "Wait time in seconds returned with denied decisions",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),

		auditWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_writes_total",
				Help:      "Total audit record writes by result",
			},
			[]string{"result"},
		),

		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_dropped_total",
				Help:      "Total audit records dropped because the buffer was full",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		c.decisionsTotal,
		c.waitSeconds,
		c.auditWrites,
		c.auditDropped,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordDecision records a throttle decision for an action.
func (c *Collector) RecordDecision(action string, allowed bool, waitSeconds int) {
	if c == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
		c.waitSeconds.Observe(float64(waitSeconds))
	}
	c.decisionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordAuditWrite records the result of an audit store write.
func (c *Collector) RecordAuditWrite(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.auditWrites.WithLabelValues(result).Inc()
}

// RecordAuditDrop records an audit record dropped on a full buffer.
func (c *Collector) RecordAuditDrop() {
	if c == nil {
		return
	}
	c.auditDropped.Inc()
}

// RecordHTTPRequest records a completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
