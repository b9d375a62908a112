package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend implements Backend using in-memory maps.
// Counters do not survive restarts; use this backend for tests and
// deployments where quota state is allowed to reset on restart.
type MemoryBackend struct {
	mu       sync.Mutex
	actions  map[string]struct{}
	counters map[counterKey]*Counter
}

type counterKey struct {
	principalID string
	action      string
}

// NewMemoryBackend creates a new in-memory counter backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		actions:  make(map[string]struct{}),
		counters: make(map[counterKey]*Counter),
	}
}

// EnsureAction registers an action name if it does not already exist.
func (m *MemoryBackend) EnsureAction(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.actions[name] = struct{}{}
	return nil
}

// Mutate runs fn against the counter for (principalID, action) under the
// backend mutex, so concurrent calls for the same row are serialized.
func (m *MemoryBackend) Mutate(ctx context.Context, principalID, action string, fn MutateFunc) error {
	if principalID == "" {
		return fmt.Errorf("principal id cannot be empty")
	}
	if action == "" {
		return fmt.Errorf("action cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.actions[action]; !ok {
		return fmt.Errorf("action %q is not registered", action)
	}

	key := counterKey{principalID: principalID, action: action}

	// fn works on a copy so an error or save=false leaves stored state untouched.
	counter := Counter{PrincipalID: principalID, Action: action}
	if stored, ok := m.counters[key]; ok {
		counter = *stored
	}

	save, err := fn(&counter)
	if err != nil {
		return err
	}
	if !save {
		return nil
	}

	saved := counter
	m.counters[key] = &saved
	return nil
}

// Get returns a copy of the stored counter, or nil if no row exists.
func (m *MemoryBackend) Get(ctx context.Context, principalID, action string) (*Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.counters[counterKey{principalID: principalID, action: action}]
	if !ok {
		return nil, nil
	}
	counter := *stored
	return &counter, nil
}

// Actions returns the registered action names in sorted order.
func (m *MemoryBackend) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.actions))
	for name := range m.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases any resources held by the backend.
func (m *MemoryBackend) Close() error {
	return nil
}
