package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hireloop/gatehouse/pkg/audit"
)

// MemoryStorage implements audit.Storage in memory. For tests and
// deployments where the audit trail is allowed to vanish on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*audit.Record
}

// NewMemoryStorage creates a new in-memory audit store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends a record.
func (m *MemoryStorage) Store(ctx context.Context, record *audit.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if !audit.ValidMethod(record.Method) {
		return fmt.Errorf("invalid method %q", record.Method)
	}

	stored := *record
	m.mu.Lock()
	m.records = append(m.records, &stored)
	m.mu.Unlock()
	return nil
}

// Query returns records matching the filters, most recent first.
func (m *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	m.mu.RLock()
	matched := m.match(query)
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := defaultQueryLimit
	offset := 0
	if query != nil {
		if query.Limit > 0 {
			limit = query.Limit
		}
		if query.Offset > 0 {
			offset = query.Offset
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*audit.Record, len(matched))
	for i, r := range matched {
		record := *r
		out[i] = &record
	}
	return out, nil
}

// Count returns the number of records matching the filters.
func (m *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.match(query))), nil
}

// Delete removes records matching the filters.
func (m *MemoryStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*audit.Record
	var deleted int64
	for _, r := range m.records {
		if matches(r, query) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

// Close releases any resources held by the backend.
func (m *MemoryStorage) Close() error {
	return nil
}

// match collects records matching the query. Caller holds the lock.
func (m *MemoryStorage) match(query *audit.Query) []*audit.Record {
	var matched []*audit.Record
	for _, r := range m.records {
		if matches(r, query) {
			matched = append(matched, r)
		}
	}
	return matched
}

// matches reports whether a record satisfies all query filters.
func matches(r *audit.Record, query *audit.Query) bool {
	if query == nil {
		return true
	}
	if query.PrincipalID != "" && r.PrincipalID != query.PrincipalID {
		return false
	}
	if query.Method != "" && r.Method != query.Method {
		return false
	}
	if query.StatusCode != 0 && r.StatusCode != query.StatusCode {
		return false
	}
	if query.PathPrefix != "" && !strings.HasPrefix(r.Path, query.PathPrefix) {
		return false
	}
	if query.StartTime != nil && r.Timestamp.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && r.Timestamp.After(*query.EndTime) {
		return false
	}
	return true
}
