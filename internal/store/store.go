// Package store provides the SQLite-backed local action store and the sync
// record store.
//
// The database runs embedded (ncruces/go-sqlite3, WASM build) with WAL so
// concurrent sync runs can read while one writes. The sync_records table is
// the single point of coordination between runs: its unique constraints on
// (provider, external_id) and (provider, action_id) guarantee an external
// item is linked to at most one local action.
//
// Architecture:
//   - actions:        authoritative local tasks
//   - sync_records:   action <-> external item links with last-synced instant
//   - sync_runs:      run summaries written by callers that keep history
//   - sync_conflicts: conflicts persisted by callers that choose to keep them
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when a requested action or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLink is returned when creating a sync record would violate
	// the (provider, external_id) or (provider, action_id) uniqueness. The
	// caller lost a race and should treat the existing record as authoritative.
	ErrDuplicateLink = errors.New("sync record already exists for this link")
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the SQLite connection with action and sync record operations.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used to stamp CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open creates a new database connection at the specified path.
//
// Pragmas are passed in the DSN so every pooled connection gets them, and
// transactions begin IMMEDIATE so concurrent writers queue on the busy
// timeout instead of failing on lock upgrade.
//
// The caller MUST call Close() when done.
func Open(path string, opts ...Option) (*DB, error) {
	path = strings.TrimPrefix(path, "file:")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Safe to call multiple times.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		priority INTEGER NOT NULL DEFAULT 2,
		due_date TEXT,
		project_id TEXT NOT NULL DEFAULT '',
		created_by_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'internal',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- No foreign key to actions: a record must survive its action being
	-- removed so the next pull can detect and heal the broken link.
	CREATE TABLE IF NOT EXISTS sync_records (
		id TEXT PRIMARY KEY,
		action_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		database_id TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'synced',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (provider, external_id),
		UNIQUE (provider, action_id)
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		provider TEXT NOT NULL,
		database_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		items_processed INTEGER NOT NULL DEFAULT 0,
		items_created INTEGER NOT NULL DEFAULT 0,
		items_updated INTEGER NOT NULL DEFAULT 0,
		items_skipped INTEGER NOT NULL DEFAULT 0,
		items_deleted INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_conflicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		action_id TEXT NOT NULL,
		external_id TEXT NOT NULL,
		local_updated_at TEXT NOT NULL,
		external_updated_at TEXT NOT NULL,
		resolution TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES sync_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_actions_scope ON actions(created_by_id, project_id, status);
	CREATE INDEX IF NOT EXISTS idx_actions_source ON actions(source);
	CREATE INDEX IF NOT EXISTS idx_records_status ON sync_records(provider, status);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON sync_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_conflicts_resolution ON sync_conflicts(resolution);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := db.addColumn(ctx, "sync_records", "database_id", `TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_records_database ON sync_records(provider, database_id)`); err != nil {
		return fmt.Errorf("failed to create database index: %w", err)
	}
	return nil
}

// addColumn adds a column to a table created by an older schema.
func (db *DB) addColumn(ctx context.Context, table, column, decl string) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to inspect %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}

	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		code := serr.ExtendedCode()
		return code == sqlite3.CONSTRAINT_UNIQUE || code == sqlite3.CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
