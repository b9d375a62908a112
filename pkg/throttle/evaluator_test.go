package throttle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hireloop/gatehouse/pkg/throttle/storage"
)

// fakeClock is a manually advanced clock for window expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// captureSink records denials handed to the audit sink.
type captureSink struct {
	mu      sync.Mutex
	denials []Denial
}

func (s *captureSink) RecordDenial(ctx context.Context, d Denial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denials = append(s.denials, d)
}

func (s *captureSink) Denials() []Denial {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Denial, len(s.denials))
	copy(out, s.denials)
	return out
}

func newTestEvaluator(t *testing.T, opts ...Option) (*Evaluator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewEvaluator(storage.NewMemoryBackend(), opts...), clock
}

// TestCheckAndConsume_WithinLimit tests that the first call is allowed.
func TestCheckAndConsume_WithinLimit(t *testing.T) {
	ev, _ := newTestEvaluator(t)

	d, err := ev.CheckAndConsume(context.Background(), "user-1", "create_job", 3, 60)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected first call to be allowed")
	}
	if d.Remaining != 2 {
		t.Errorf("Expected remaining 2, got %d", d.Remaining)
	}
}

// TestCheckAndConsume_MonotonicQuota tests that at most limit calls succeed
// within one window and the next is denied with the remaining wait time.
func TestCheckAndConsume_MonotonicQuota(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 3, 60)
		if err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
	}

	d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 3, 60)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("Expected 4th call to be denied")
	}
	if d.WaitSeconds != 60 {
		t.Errorf("Expected wait 60, got %d", d.WaitSeconds)
	}
	if err := d.Err(); err == nil {
		t.Error("Expected Err() to report the denial")
	} else {
		var quotaErr *QuotaExceededError
		if !errors.As(err, &quotaErr) {
			t.Errorf("Expected QuotaExceededError, got %T", err)
		} else if quotaErr.WaitSeconds != 60 {
			t.Errorf("Expected wait 60 in error, got %d", quotaErr.WaitSeconds)
		}
	}
}

// TestCheckAndConsume_DenialDoesNotIncrement tests that a denied call leaves
// the counter unchanged.
func TestCheckAndConsume_DenialDoesNotIncrement(t *testing.T) {
	backend := storage.NewMemoryBackend()
	clock := newFakeClock()
	ev := NewEvaluator(backend, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 2, 60); err != nil {
			t.Fatalf("CheckAndConsume failed: %v", err)
		}
	}

	before, err := backend.Get(ctx, "user-1", "create_job")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 2, 60)
		if err != nil {
			t.Fatalf("CheckAndConsume failed: %v", err)
		}
		if d.Allowed {
			t.Fatal("Expected denial")
		}
	}

	after, err := backend.Get(ctx, "user-1", "create_job")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after.Count != before.Count {
		t.Errorf("Denials mutated the counter: before %d, after %d", before.Count, after.Count)
	}
	if !after.WindowStart.Equal(before.WindowStart) {
		t.Errorf("Denials moved the window start: before %v, after %v", before.WindowStart, after.WindowStart)
	}
}

// TestCheckAndConsume_WindowReset tests that an elapsed window is reset in
// place by the next call, which then succeeds.
func TestCheckAndConsume_WindowReset(t *testing.T) {
	ev, clock := newTestEvaluator(t)
	ctx := context.Background()

	d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 1)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected first call to be allowed")
	}

	d, err = ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 1)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("Expected second call in the same window to be denied")
	}

	clock.Advance(2 * time.Second)

	d, err = ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 1)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if !d.Allowed {
		t.Fatal("Expected call after window elapsed to be allowed")
	}
	if !d.WindowStart.Equal(clock.Now()) {
		t.Errorf("Expected window start to move to now, got %v", d.WindowStart)
	}
}

// TestCheckAndConsume_ResetAdoptsNewWindow tests that a caller can change the
// window length when the previous window has elapsed.
func TestCheckAndConsume_ResetAdoptsNewWindow(t *testing.T) {
	backend := storage.NewMemoryBackend()
	clock := newFakeClock()
	ev := NewEvaluator(backend, WithClock(clock.Now))
	ctx := context.Background()

	if _, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 1); err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}

	clock.Advance(5 * time.Second)

	if _, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 300); err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}

	counter, err := backend.Get(ctx, "user-1", "create_job")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if counter.WindowSeconds != 300 {
		t.Errorf("Expected new window length 300, got %d", counter.WindowSeconds)
	}
}

// TestCheckAndConsume_Independence tests that principals and actions are
// throttled independently.
func TestCheckAndConsume_Independence(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	ctx := context.Background()

	// Exhaust alice's quota for create_job.
	if _, err := ev.CheckAndConsume(ctx, "alice", "create_job", 1, 60); err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	d, err := ev.CheckAndConsume(ctx, "alice", "create_job", 1, 60)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("Expected alice's second create_job to be denied")
	}

	// Bob's first call for the same action is unaffected.
	d, err = ev.CheckAndConsume(ctx, "bob", "create_job", 1, 60)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if !d.Allowed {
		t.Error("Expected bob's first create_job to be allowed")
	}

	// Alice's first call for a different action is unaffected.
	d, err = ev.CheckAndConsume(ctx, "alice", "delete_job", 1, 60)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if !d.Allowed {
		t.Error("Expected alice's first delete_job to be allowed")
	}
}

// TestCheckAndConsume_Validation tests input validation.
func TestCheckAndConsume_Validation(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		principal string
		action    string
		limit     int
		window    int
		wantErr   error
	}{
		{"empty principal", "", "create_job", 3, 60, ErrNoPrincipal},
		{"empty action", "user-1", "", 3, 60, ErrNoAction},
		{"zero limit", "user-1", "create_job", 0, 60, nil},
		{"zero window", "user-1", "create_job", 3, 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ev.CheckAndConsume(ctx, tc.principal, tc.action, tc.limit, tc.window)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// TestCheckAndConsume_Concurrency tests that N concurrent calls for the same
// principal and action produce exactly min(N, L) allowed outcomes.
func TestCheckAndConsume_Concurrency(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ev := NewEvaluator(backend)
	ctx := context.Background()

	const (
		workers = 50
		limit   = 10
	)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", limit, 3600)
			if err != nil {
				errs <- err
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}

	if got := allowed.Load(); got != limit {
		t.Errorf("Expected exactly %d allowed, got %d", limit, got)
	}

	counter, err := backend.Get(ctx, "user-1", "create_job")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if counter.Count != limit {
		t.Errorf("Expected final count %d, got %d (lost or extra increments)", limit, counter.Count)
	}
}

// TestCheckAndConsume_SQLiteBackend runs the quota scenario against the
// durable backend.
func TestCheckAndConsume_SQLiteBackend(t *testing.T) {
	backend, err := storage.NewSQLiteBackend(filepath.Join(t.TempDir(), "counters.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	defer backend.Close()

	ev := NewEvaluator(backend)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 3, 60)
		if err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
	}
	d, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 3, 60)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("Expected 4th call to be denied")
	}
}

// TestCheckAndConsume_RegistersActionOnce tests idempotent lazy registration
// under concurrent first use by multiple principals.
func TestCheckAndConsume_RegistersActionOnce(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ev := NewEvaluator(backend)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			principal := string(rune('a' + n%5))
			_, _ = ev.CheckAndConsume(ctx, principal, "send_message", 10, 60)
		}(i)
	}
	wg.Wait()

	actions := backend.Actions()
	if len(actions) != 1 || actions[0] != "send_message" {
		t.Errorf("Expected exactly one registered action, got %v", actions)
	}
}

// TestCheckAndConsume_AuditOnDenial tests that denials reach the audit sink
// and allowed calls do not.
func TestCheckAndConsume_AuditOnDenial(t *testing.T) {
	sink := &captureSink{}
	ev, _ := newTestEvaluator(t, WithAuditSink(sink))
	ctx := context.Background()

	if _, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 60); err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if len(sink.Denials()) != 0 {
		t.Fatalf("Expected no denial events yet, got %d", len(sink.Denials()))
	}

	if _, err := ev.CheckAndConsume(ctx, "user-1", "create_job", 1, 60); err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}

	denials := sink.Denials()
	if len(denials) != 1 {
		t.Fatalf("Expected 1 denial event, got %d", len(denials))
	}
	d := denials[0]
	if d.PrincipalID != "user-1" || d.Action != "create_job" {
		t.Errorf("Unexpected denial event: %+v", d)
	}
	if d.StatusCode != 429 {
		t.Errorf("Expected status 429, got %d", d.StatusCode)
	}
	if d.WaitSeconds != 60 {
		t.Errorf("Expected wait 60, got %d", d.WaitSeconds)
	}
}

// TestCheckFailedLogin tests the fixed failed-login policy: 5 attempts per
// 15 minutes, 6th denied with the remaining window as wait time.
func TestCheckFailedLogin(t *testing.T) {
	sink := &captureSink{}
	ev, clock := newTestEvaluator(t, WithAuditSink(sink))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := ev.CheckFailedLogin(ctx, "user-1")
		if err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}

	clock.Advance(5 * time.Minute)

	d, err := ev.CheckFailedLogin(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckFailedLogin failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("Expected 6th attempt to be denied")
	}
	if d.WaitSeconds != 10*60 {
		t.Errorf("Expected wait of remaining 600s, got %d", d.WaitSeconds)
	}
	if len(sink.Denials()) != 1 {
		t.Fatalf("Expected denial audit event, got %d", len(sink.Denials()))
	}
	if sink.Denials()[0].Action != FailedLoginAction {
		t.Errorf("Expected action %q, got %q", FailedLoginAction, sink.Denials()[0].Action)
	}
}
