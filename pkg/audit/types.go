package audit

import (
	"context"
	"time"
)

// Record is one entry in the request audit trail.
type Record struct {
	// ID is a UUID assigned when the record is accepted.
	ID string `json:"id"`

	// PrincipalID identifies the acting user. Empty means anonymous
	// (stored as NULL), e.g. a failed authentication.
	PrincipalID string `json:"principal_id,omitempty"`

	// SourceAddr is the client address the request came from.
	SourceAddr string `json:"source_addr"`

	// Path is the request path.
	Path string `json:"path"`

	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE).
	Method string `json:"method"`

	// StatusCode is the response status code.
	StatusCode int `json:"status_code"`

	// Timestamp is when the outcome was observed.
	Timestamp time.Time `json:"timestamp"`
}

// ValidMethod reports whether m is one of the recorded HTTP methods.
func ValidMethod(m string) bool {
	switch m {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// Query defines filter parameters for querying audit records.
type Query struct {
	// PrincipalID filters by principal. Empty matches all records.
	PrincipalID string `json:"principal_id,omitempty"`

	// Method filters by HTTP method.
	Method string `json:"method,omitempty"`

	// StatusCode filters by exact status code. Zero matches all.
	StatusCode int `json:"status_code,omitempty"`

	// PathPrefix filters by request path prefix.
	PathPrefix string `json:"path_prefix,omitempty"`

	// StartTime and EndTime bound the timestamp (inclusive).
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Limit is the maximum number of records to return. Zero means the
	// backend default.
	Limit int `json:"limit,omitempty"`

	// Offset skips the first N matching records.
	Offset int `json:"offset,omitempty"`
}

// Storage defines the interface for audit record persistence.
// Implementations must be safe for concurrent use. Records are append-only:
// there is no update operation, and Delete exists only for retention.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *Record) error

	// Query returns records matching the filters, most recent first.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the filters and returns how many
	// were removed. Used by retention enforcement only.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}
