package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hireloop/gatehouse/pkg/audit"
)

// defaultQueryLimit bounds unpaginated queries.
const defaultQueryLimit = 100

// SQLiteStorage implements audit.Storage using SQLite.
//
// The audit trail is insert-heavy and read-rarely; the store uses WAL mode
// and a busy timeout so inserts from the async recorder never block readers
// for long.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite audit store at the given path.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStorage) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InsertSchemaVersion, SchemaVersion)
	return err
}

// Store persists an audit record. An empty principal is stored as NULL.
func (s *SQLiteStorage) Store(ctx context.Context, record *audit.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if !audit.ValidMethod(record.Method) {
		return fmt.Errorf("invalid method %q", record.Method)
	}

	var principal sql.NullString
	if record.PrincipalID != "" {
		principal = sql.NullString{String: record.PrincipalID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (id, principal_id, source_addr, path, method, status_code, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ID, principal, record.SourceAddr, record.Path, record.Method,
		record.StatusCode, record.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store audit record: %w", err)
	}
	return nil
}

// Query returns records matching the filters, most recent first.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	where, args := buildWhere(query)

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

	q := fmt.Sprintf(`
		SELECT id, principal_id, source_addr, path, method, status_code, timestamp
		FROM request_logs
		%s
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		var (
			record    audit.Record
			principal sql.NullString
			timestamp int64
		)
		if err := rows.Scan(&record.ID, &principal, &record.SourceAddr, &record.Path,
			&record.Method, &record.StatusCode, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if principal.Valid {
			record.PrincipalID = principal.String
		}
		record.Timestamp = time.Unix(0, timestamp)
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Count returns the number of records matching the filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhere(query)

	var n int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM request_logs %s`, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return n, nil
}

// Delete removes records matching the filters. Used by retention only.
func (s *SQLiteStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhere(query)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM request_logs %s`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// buildWhere translates a Query into a WHERE clause and arguments.
func buildWhere(query *audit.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var (
		conditions []string
		args       []any
	)

	if query.PrincipalID != "" {
		conditions = append(conditions, "principal_id = ?")
		args = append(args, query.PrincipalID)
	}
	if query.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, query.Method)
	}
	if query.StatusCode != 0 {
		conditions = append(conditions, "status_code = ?")
		args = append(args, query.StatusCode)
	}
	if query.PathPrefix != "" {
		conditions = append(conditions, "path LIKE ?")
		args = append(args, query.PathPrefix+"%")
	}
	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.EndTime.UnixNano())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
