package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence.
// This backend provides durable counters and is suitable for single-instance
// deployments where quota state must survive restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent performance
// and wraps every Mutate in a single transaction so a cancelled or failed call
// never leaves a partial increment behind.
type SQLiteBackend struct {
	db        *sql.DB
	dbPath    string
	mu        sync.Mutex
	closeOnce sync.Once

	// preparedStatements contains pre-compiled SQL statements for performance
	ensureActionStmt *sql.Stmt
	getStmt          *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite counter backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:      dbPath,
		BusyTimeout: 5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS counters (
		principal_id TEXT NOT NULL,
		action_id INTEGER NOT NULL REFERENCES actions(id),
		count INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL,
		window_seconds INTEGER NOT NULL,
		PRIMARY KEY (principal_id, action_id)
	);

	CREATE INDEX IF NOT EXISTS idx_counters_action ON counters(action_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.ensureActionStmt, err = s.db.Prepare(`
		INSERT INTO actions (name) VALUES (?)
		ON CONFLICT (name) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ensure-action statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`
		SELECT c.count, c.window_start, c.window_seconds
		FROM counters c
		JOIN actions a ON a.id = c.action_id
		WHERE c.principal_id = ? AND a.name = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	return nil
}

// EnsureAction registers an action name if it does not already exist.
// The uniqueness constraint on actions.name absorbs duplicate-creation races.
func (s *SQLiteBackend) EnsureAction(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureActionStmt.ExecContext(ctx, name); err != nil {
		return fmt.Errorf("failed to register action %q: %w", name, err)
	}
	return nil
}

// Mutate runs fn against the counter row for (principalID, action) inside a
// single transaction. The backend mutex plus the transaction guarantee that
// concurrent calls for the same row are serialized and that a failed or
// abandoned call leaves the row unchanged.
func (s *SQLiteBackend) Mutate(ctx context.Context, principalID, action string, fn MutateFunc) error {
	if principalID == "" {
		return fmt.Errorf("principal id cannot be empty")
	}
	if action == "" {
		return fmt.Errorf("action cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var actionID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM actions WHERE name = ?`, action).Scan(&actionID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("action %q is not registered", action)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve action %q: %w", action, err)
	}

	counter := &Counter{
		PrincipalID: principalID,
		Action:      action,
	}

	var (
		count         int
		windowStart   int64
		windowSeconds int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT count, window_start, window_seconds
		FROM counters
		WHERE principal_id = ? AND action_id = ?
	`, principalID, actionID).Scan(&count, &windowStart, &windowSeconds)
	switch {
	case err == sql.ErrNoRows:
		// Leave the zero counter; fn initializes it.
	case err != nil:
		return fmt.Errorf("failed to load counter: %w", err)
	default:
		counter.Count = count
		counter.WindowStart = time.Unix(0, windowStart)
		counter.WindowSeconds = windowSeconds
	}

	save, err := fn(counter)
	if err != nil {
		return err
	}
	if !save {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO counters (principal_id, action_id, count, window_start, window_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (principal_id, action_id) DO UPDATE SET
			count = excluded.count,
			window_start = excluded.window_start,
			window_seconds = excluded.window_seconds
	`, principalID, actionID, counter.Count, counter.WindowStart.UnixNano(), counter.WindowSeconds)
	if err != nil {
		return fmt.Errorf("failed to save counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit counter update: %w", err)
	}
	return nil
}

// Get returns the stored counter for (principalID, action), or nil if no row exists.
func (s *SQLiteBackend) Get(ctx context.Context, principalID, action string) (*Counter, error) {
	if principalID == "" {
		return nil, fmt.Errorf("principal id cannot be empty")
	}
	if action == "" {
		return nil, fmt.Errorf("action cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		count         int
		windowStart   int64
		windowSeconds int
	)
	err := s.getStmt.QueryRowContext(ctx, principalID, action).Scan(&count, &windowStart, &windowSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load counter: %w", err)
	}

	return &Counter{
		PrincipalID:   principalID,
		Action:        action,
		Count:         count,
		WindowStart:   time.Unix(0, windowStart),
		WindowSeconds: windowSeconds,
	}, nil
}

// ActionCount returns the number of registered actions.
func (s *SQLiteBackend) ActionCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.ensureActionStmt != nil {
			s.ensureActionStmt.Close()
		}
		if s.getStmt != nil {
			s.getStmt.Close()
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}
