// Package storage provides durable counter storage for the throttle engine.
//
// A Backend keeps one counter row per (principal, action) pair and exposes
// Mutate, a row-scoped critical section: the callback observes the current
// counter, mutates it, and the backend persists the result atomically before
// any other caller can observe the row. This is the single point in gatehouse
// where concurrent requests contend on shared state.
//
// Three backends are provided:
//
//   - SQLiteBackend: durable single-instance storage (default)
//   - MemoryBackend: ephemeral storage for tests and short-lived deployments
//   - RedisBackend: shared storage for multi-instance deployments
package storage
