package storage

import (
	"context"
	"time"
)

// Counter tracks usage of one action by one principal within one time window.
type Counter struct {
	// PrincipalID identifies the acting user.
	PrincipalID string

	// Action is the registered action name.
	Action string

	// Count is the number of occurrences recorded in the current window.
	Count int

	// WindowStart is when the current window opened. A zero WindowStart
	// means the row did not exist yet; the caller is expected to
	// initialize it.
	WindowStart time.Time

	// WindowSeconds is the length of the current window.
	WindowSeconds int
}

// MutateFunc is applied to a counter row inside the row's critical section.
// Returning save=true persists the (possibly modified) counter before the
// section is released; save=false leaves stored state untouched.
//
// Backends with optimistic concurrency (Redis) may invoke fn more than once
// when the row changes underneath them, so fn must be safe to re-run and must
// not carry side effects outside the counter and its captured result.
type MutateFunc func(c *Counter) (save bool, err error)

// Backend defines the interface for counter persistence.
// Implementations must be safe for concurrent use.
type Backend interface {
	// EnsureAction registers an action name, creating it if it does not
	// exist. Safe to call concurrently for the same name; exactly one
	// registration results.
	EnsureAction(ctx context.Context, name string) error

	// Mutate runs fn against the counter row for (principalID, action)
	// atomically. Two concurrent Mutate calls for the same row are
	// serialized; calls for different rows are independent. If fn returns
	// an error or save=false, stored state is unchanged.
	//
	// The action must have been registered with EnsureAction first.
	Mutate(ctx context.Context, principalID, action string, fn MutateFunc) error

	// Get returns the stored counter for (principalID, action), or nil if
	// no row exists.
	Get(ctx context.Context, principalID, action string) (*Counter, error)

	// Close releases any resources held by the backend.
	Close() error
}
