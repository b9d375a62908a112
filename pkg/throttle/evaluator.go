package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"hireloop/gatehouse/pkg/telemetry/metrics"
	"hireloop/gatehouse/pkg/throttle/storage"
)

// Evaluator decides whether a principal may perform a named action right now
// and records the occurrence when it is allowed.
//
// All quota state lives in the storage backend; the evaluator itself is
// stateless and safe for concurrent use.
type Evaluator struct {
	store    storage.Backend
	registry *Registry
	audit    AuditSink
	clock    Clock
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithClock replaces the wall clock. Used by tests to control window expiry.
func WithClock(clock Clock) Option {
	return func(e *Evaluator) { e.clock = clock }
}

// WithAuditSink wires an audit sink that receives denial events.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Evaluator) { e.audit = sink }
}

// WithMetrics wires a metrics collector that records decisions.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Evaluator) { e.metrics = collector }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// NewEvaluator creates an evaluator on the given counter store.
func NewEvaluator(store storage.Backend, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:    store,
		registry: NewRegistry(store),
		clock:    time.Now,
		logger:   slog.Default().With("component", "throttle"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAndConsume checks and updates the quota for a principal and action.
//
// The limit and window length are supplied by the caller: different call
// sites use different quotas for the same evaluator. Unknown action names are
// registered on first use.
//
// The returned decision is Allowed when the occurrence was counted, or a
// denial carrying the wait time in seconds; a denial does not mutate state.
// A non-nil error means the counter could not be updated at all — callers
// must treat that as a denial (fail closed), since under-throttling is worse
// than over-throttling for abuse prevention.
func (e *Evaluator) CheckAndConsume(ctx context.Context, principalID, actionName string, limit, windowSeconds int) (*Decision, error) {
	if principalID == "" {
		return nil, ErrNoPrincipal
	}
	if actionName == "" {
		return nil, ErrNoAction
	}
	if limit < 1 {
		return nil, fmt.Errorf("throttle: limit must be at least 1, got %d", limit)
	}
	if windowSeconds < 1 {
		return nil, fmt.Errorf("throttle: window must be at least 1 second, got %d", windowSeconds)
	}

	if err := e.registry.Ensure(ctx, actionName); err != nil {
		return nil, err
	}

	window := time.Duration(windowSeconds) * time.Second

	// The whole check-and-increment runs inside the row's critical section.
	// The callback may re-run on optimistic-lock backends, so the decision
	// is rebuilt from scratch on every invocation.
	var decision Decision
	err := e.store.Mutate(ctx, principalID, actionName, func(c *storage.Counter) (bool, error) {
		now := e.clock()
		decision = Decision{Limit: limit}

		if c.WindowStart.IsZero() {
			c.Count = 0
			c.WindowStart = now
			c.WindowSeconds = windowSeconds
		}

		// Reset in place once the stored window has elapsed, adopting the
		// caller's window length for the new cycle.
		if !now.Before(c.WindowStart.Add(time.Duration(c.WindowSeconds) * time.Second)) {
			c.Count = 0
			c.WindowStart = now
			c.WindowSeconds = windowSeconds
		}

		decision.WindowStart = c.WindowStart

		if c.Count >= limit {
			decision.WaitSeconds = ceilSeconds(c.WindowStart.Add(window).Sub(now))
			return false, nil
		}

		c.Count++
		decision.Allowed = true
		decision.Remaining = limit - c.Count
		return true, nil
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "counter update failed",
			"action", actionName,
			"error", err,
		)
		return nil, fmt.Errorf("throttle: %s: %w", actionName, err)
	}

	e.metrics.RecordDecision(actionName, decision.Allowed, decision.WaitSeconds)

	if !decision.Allowed {
		e.logger.WarnContext(ctx, "rate limit exceeded",
			"principal", principalID,
			"action", actionName,
			"limit", limit,
			"wait_seconds", decision.WaitSeconds,
		)
		if e.audit != nil {
			// Outside the critical section: the audit write must never
			// extend the row lock or affect the decision.
			e.audit.RecordDenial(ctx, Denial{
				PrincipalID: principalID,
				Action:      actionName,
				StatusCode:  http.StatusTooManyRequests,
				WaitSeconds: decision.WaitSeconds,
			})
		}
	}

	return &decision, nil
}

// ceilSeconds converts a remaining duration to whole seconds, rounding up so
// a caller that waits the full time always lands after the window reopens.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
