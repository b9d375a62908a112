package throttle

import (
	"context"
	"fmt"
	"sync"

	"hireloop/gatehouse/pkg/throttle/storage"
)

// Registry resolves action names to their canonical registration, creating
// them lazily on first use. The storage layer's uniqueness constraint absorbs
// duplicate-creation races; the registry adds an in-process cache so the
// get-or-create only hits storage once per action name per process.
type Registry struct {
	store storage.Backend

	mu    sync.RWMutex
	known map[string]struct{}
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store storage.Backend) *Registry {
	return &Registry{
		store: store,
		known: make(map[string]struct{}),
	}
}

// Ensure registers the action name if this process has not seen it yet.
// Safe for concurrent use; concurrent first-use of the same name results in
// exactly one registration.
func (r *Registry) Ensure(ctx context.Context, name string) error {
	if name == "" {
		return ErrNoAction
	}

	r.mu.RLock()
	_, ok := r.known[name]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	if err := r.store.EnsureAction(ctx, name); err != nil {
		return fmt.Errorf("throttle: register action %q: %w", name, err)
	}

	r.mu.Lock()
	r.known[name] = struct{}{}
	r.mu.Unlock()
	return nil
}
