package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on Redis so multiple gatehouse instances
// can share counters.
//
// Each counter row is a Redis hash keyed by prefix, action and principal.
// Mutate uses WATCH with a transactional pipeline: the row is read, fn is
// applied, and the write commits only if no other client touched the key in
// between. On conflict the whole read-modify-write is retried, which keeps
// the per-row serializability guarantee without holding a lock across the
// network round trips.
type RedisBackend struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int
}

// RedisBackendOption customizes a RedisBackend.
type RedisBackendOption func(*RedisBackend)

// WithKeyPrefix sets the key prefix for all counter and action keys.
// Default: "gatehouse".
func WithKeyPrefix(prefix string) RedisBackendOption {
	return func(b *RedisBackend) { b.prefix = prefix }
}

// WithMaxRetries sets how many optimistic-lock conflicts Mutate tolerates
// before giving up. Default: 16.
func WithMaxRetries(n int) RedisBackendOption {
	return func(b *RedisBackend) { b.maxRetries = n }
}

// NewRedisBackend creates a Redis counter backend on an existing client.
func NewRedisBackend(rdb *redis.Client, opts ...RedisBackendOption) *RedisBackend {
	b := &RedisBackend{
		rdb:        rdb,
		prefix:     "gatehouse",
		maxRetries: 16,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) actionsKey() string {
	return b.prefix + ":actions"
}

func (b *RedisBackend) counterKey(principalID, action string) string {
	return fmt.Sprintf("%s:counter:%s:%s", b.prefix, action, principalID)
}

// EnsureAction registers an action name in the shared action set.
func (b *RedisBackend) EnsureAction(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}
	if err := b.rdb.SAdd(ctx, b.actionsKey(), name).Err(); err != nil {
		return fmt.Errorf("failed to register action %q: %w", name, err)
	}
	return nil
}

// Mutate runs fn against the counter row for (principalID, action) under an
// optimistic lock. fn may run more than once when concurrent writers collide.
func (b *RedisBackend) Mutate(ctx context.Context, principalID, action string, fn MutateFunc) error {
	if principalID == "" {
		return fmt.Errorf("principal id cannot be empty")
	}
	if action == "" {
		return fmt.Errorf("action cannot be empty")
	}

	registered, err := b.rdb.SIsMember(ctx, b.actionsKey(), action).Result()
	if err != nil {
		return fmt.Errorf("failed to resolve action %q: %w", action, err)
	}
	if !registered {
		return fmt.Errorf("action %q is not registered", action)
	}

	key := b.counterKey(principalID, action)

	txn := func(tx *redis.Tx) error {
		counter, err := b.loadCounter(ctx, tx, key, principalID, action)
		if err != nil {
			return err
		}

		save, err := fn(counter)
		if err != nil {
			return err
		}
		if !save {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"count", counter.Count,
				"window_start", counter.WindowStart.UnixNano(),
				"window_seconds", counter.WindowSeconds,
			)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < b.maxRetries; attempt++ {
		err := b.rdb.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Another client modified the row; retry the whole section.
			continue
		}
		return fmt.Errorf("failed to update counter: %w", err)
	}

	return fmt.Errorf("counter update for %q contended beyond %d retries", action, b.maxRetries)
}

// Get returns the stored counter, or nil if no row exists.
func (b *RedisBackend) Get(ctx context.Context, principalID, action string) (*Counter, error) {
	key := b.counterKey(principalID, action)

	vals, err := b.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load counter: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return parseCounter(vals, principalID, action)
}

// Close releases the underlying Redis client.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

// loadCounter reads the counter hash inside a watched transaction.
func (b *RedisBackend) loadCounter(ctx context.Context, tx *redis.Tx, key, principalID, action string) (*Counter, error) {
	vals, err := tx.HGetAll(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load counter: %w", err)
	}
	if len(vals) == 0 {
		return &Counter{PrincipalID: principalID, Action: action}, nil
	}
	return parseCounter(vals, principalID, action)
}

// parseCounter decodes a counter hash into a Counter.
func parseCounter(vals map[string]string, principalID, action string) (*Counter, error) {
	count, err := strconv.Atoi(vals["count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt counter field count: %w", err)
	}
	windowStart, err := strconv.ParseInt(vals["window_start"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt counter field window_start: %w", err)
	}
	windowSeconds, err := strconv.Atoi(vals["window_seconds"])
	if err != nil {
		return nil, fmt.Errorf("corrupt counter field window_seconds: %w", err)
	}

	return &Counter{
		PrincipalID:   principalID,
		Action:        action,
		Count:         count,
		WindowStart:   time.Unix(0, windowStart),
		WindowSeconds: windowSeconds,
	}, nil
}
