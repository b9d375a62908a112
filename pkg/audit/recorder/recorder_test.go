package recorder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/audit/storage"
)

// blockingStorage wraps a MemoryStorage and blocks every Store call until
// released. Used to force the async buffer to fill.
type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
}

func (b *blockingStorage) Store(ctx context.Context, record *audit.Record) error {
	<-b.release
	return b.MemoryStorage.Store(ctx, record)
}

// failingStorage rejects every write.
type failingStorage struct {
	*storage.MemoryStorage
	mu    sync.Mutex
	calls int
}

func (f *failingStorage) Store(ctx context.Context, record *audit.Record) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return fmt.Errorf("disk full")
}

func (f *failingStorage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForCount(t *testing.T, s audit.Storage, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := s.Count(context.Background(), nil)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	n, _ := s.Count(context.Background(), nil)
	t.Fatalf("expected %d stored records, got %d", want, n)
}

func TestRecorder_FillsIDAndTimestamp(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewRecorder(store, nil, nil)
	defer r.Close()

	record := &audit.Record{
		PrincipalID: "alice",
		SourceAddr:  "10.0.0.1:1",
		Path:        "/api/jobs",
		Method:      "POST",
		StatusCode:  201,
	}
	r.Record(context.Background(), record)

	if record.ID == "" {
		t.Error("expected ID to be filled")
	}
	if record.Timestamp.IsZero() {
		t.Error("expected Timestamp to be filled")
	}

	waitForCount(t, store, 1)
}

func TestRecorder_Disabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewRecorder(store, &Config{Enabled: false}, nil)

	r.Record(context.Background(), &audit.Record{
		SourceAddr: "10.0.0.1:1",
		Path:       "/api/jobs",
		Method:     "GET",
		StatusCode: 200,
	})
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	n, err := store.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no records when disabled, got %d", n)
	}
}

func TestRecorder_CloseDrainsBuffer(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := NewRecorder(store, &Config{Enabled: true, AsyncBuffer: 64}, nil)

	for i := 0; i < 20; i++ {
		r.Record(context.Background(), &audit.Record{
			PrincipalID: "alice",
			SourceAddr:  "10.0.0.1:1",
			Path:        fmt.Sprintf("/api/jobs/%d", i),
			Method:      "GET",
			StatusCode:  200,
		})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	n, err := store.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 20 {
		t.Errorf("expected 20 records after drain, got %d", n)
	}
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	blocking := &blockingStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		release:       make(chan struct{}),
	}
	r := NewRecorder(blocking, &Config{Enabled: true, AsyncBuffer: 2}, nil)

	// The worker blocks on the first write; two more fill the buffer.
	// Everything past that must drop without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(context.Background(), &audit.Record{
				SourceAddr: "10.0.0.1:1",
				Path:       "/api/jobs",
				Method:     "GET",
				StatusCode: 200,
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(blocking.release)
	r.Close()
}

func TestRecorder_StorageErrorDoesNotStopWorker(t *testing.T) {
	failing := &failingStorage{MemoryStorage: storage.NewMemoryStorage()}
	r := NewRecorder(failing, &Config{Enabled: true, AsyncBuffer: 8}, nil)

	for i := 0; i < 3; i++ {
		r.Record(context.Background(), &audit.Record{
			SourceAddr: "10.0.0.1:1",
			Path:       "/api/jobs",
			Method:     "GET",
			StatusCode: 200,
		})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if failing.callCount() != 3 {
		t.Errorf("expected 3 store attempts, got %d", failing.callCount())
	}
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := NewRecorder(storage.NewMemoryStorage(), nil, nil)
	if err := r.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
