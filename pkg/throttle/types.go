package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Validation errors returned by CheckAndConsume before any state is touched.
var (
	// ErrNoPrincipal is returned when the principal id is empty.
	// Anonymous callers must be rejected before reaching the evaluator.
	ErrNoPrincipal = errors.New("throttle: principal must not be empty")

	// ErrNoAction is returned when the action name is empty.
	ErrNoAction = errors.New("throttle: action name must not be empty")
)

// Decision is the outcome of a single CheckAndConsume call.
type Decision struct {
	// Allowed reports whether the action may proceed. When true, the
	// occurrence has already been counted.
	Allowed bool

	// Limit is the quota the call was evaluated against.
	Limit int

	// Remaining is the number of slots left in the current window after
	// this call. Zero when denied.
	Remaining int

	// WaitSeconds is how long the caller should wait before retrying.
	// Only set when denied.
	WaitSeconds int

	// WindowStart is when the current window opened.
	WindowStart time.Time
}

// Err returns a *QuotaExceededError when the decision is a denial, and nil
// otherwise. Useful for callers that prefer error flow over inspecting the
// decision.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &QuotaExceededError{WaitSeconds: d.WaitSeconds}
}

// QuotaExceededError reports that a principal exhausted its allowance for the
// current window. It carries the wait time for client-side backoff.
type QuotaExceededError struct {
	// WaitSeconds is the number of seconds until the window reopens.
	WaitSeconds int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, try again in %d seconds", e.WaitSeconds)
}

// Clock supplies wall-clock time to the evaluator. Injectable for tests.
type Clock func() time.Time

// Denial describes a denied decision handed to the audit sink.
type Denial struct {
	// PrincipalID is the throttled principal.
	PrincipalID string

	// Action is the denied action name.
	Action string

	// StatusCode is the transport status the denial maps to.
	StatusCode int

	// WaitSeconds is the wait time returned with the denial.
	WaitSeconds int
}

// AuditSink receives denial events from the evaluator. Implementations must
// not block: audit writes are fire-and-forget and a failing sink must never
// affect the decision already made.
type AuditSink interface {
	RecordDenial(ctx context.Context, d Denial)
}
