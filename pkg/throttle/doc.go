// Package throttle implements fixed-window rate limiting over durable
// per-(principal, action) counters.
//
// The Evaluator is the engine: CheckAndConsume decides whether a principal
// may perform a named action right now, given a caller-supplied limit and
// window length, and records the occurrence when it is allowed. The whole
// check-and-increment runs inside the storage backend's row-scoped critical
// section, so two concurrent calls can never both spend the last slot of a
// window.
//
// Quota policy lives at the call site: every caller passes its own action
// name, limit and window, and unknown action names are registered on first
// use. CheckFailedLogin is a fixed-policy preset over the same primitive
// used to slow down repeated authentication failures.
package throttle
