/*
Package sqlite provides a SQLite-backed attendance store and event journal.

PURPOSE:
  Two roles, usable together or apart:
  - attendance.Store + attendance.SpanHistory: a standalone HR store for
    sites without Odoo, and for local development
  - attendance.Journal + attendance.SweepLister: the local audit trail of
    terminal events and reaper runs, kept next to any backend

INTERFACES IMPLEMENTED:
  attendance.Store:        Employees and attendance spans
  attendance.SpanHistory:  Span listing by range
  attendance.Journal:      Terminal events and sweep runs (append-only)
  attendance.SweepLister:  Sweep run history

OPEN-SPAN GUARD:
  The partial unique index idx_attendances_one_open allows at most one row
  per employee with check_out IS NULL. A second check-in fails at the
  database and is reported as attendance.WriteRejectedError, so the
  invariant holds even across processes sharing the file.

KEY TABLES:
  employees:       Directory (id, name, registration_number)
  attendances:     Spans, UTC "YYYY-MM-DD HH:MM:SS" like the HR store
  terminal_events: One row per handled webhook
  reaper_runs:     One row per sweep

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows one writer at a time
  anyway; the mutex keeps read-after-write ordering simple.

WAL MODE:
  File databases are opened with WAL so readers don't block the writer.
  ":memory:" databases are pinned to one connection, since every new
  connection would otherwise see an empty database.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-bridge/attendance"
)

// Store implements the attendance storage and journal interfaces.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employee directory
	CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		registration_number TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_registration
		ON employees(registration_number);

	-- Attendance spans
	CREATE TABLE IF NOT EXISTS attendances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		check_in TEXT NOT NULL,
		check_out TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (check_out IS NULL OR check_out >= check_in)
	);

	-- CRITICAL: at most one open span per employee
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendances_one_open
		ON attendances(employee_id)
		WHERE check_out IS NULL;

	-- Range listing per employee
	CREATE INDEX IF NOT EXISTS idx_attendances_employee_check_in
		ON attendances(employee_id, check_in);

	-- Stale-span sweep (hot path for the reaper)
	CREATE INDEX IF NOT EXISTS idx_attendances_open_check_in
		ON attendances(check_in)
		WHERE check_out IS NULL;

	-- Terminal events (append-only journal)
	CREATE TABLE IF NOT EXISTS terminal_events (
		id TEXT PRIMARY KEY,
		received_at TEXT NOT NULL,
		employee_ref TEXT NOT NULL DEFAULT '',
		employee_id INTEGER,
		raw_time TEXT NOT NULL DEFAULT '',
		vendor_action TEXT NOT NULL DEFAULT '',
		decision TEXT,
		action TEXT,
		span_id INTEGER,
		substituted BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_terminal_events_received
		ON terminal_events(received_at);
	CREATE INDEX IF NOT EXISTS idx_terminal_events_employee
		ON terminal_events(employee_id, received_at);

	-- Reaper runs
	CREATE TABLE IF NOT EXISTS reaper_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		threshold_hours INTEGER NOT NULL,
		found INTEGER NOT NULL DEFAULT 0,
		closed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reaper_runs_started
		ON reaper_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int64) sql.NullInt64 {
	if n <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// storeError reports constraint violations as store faults and everything
// else as the store being unavailable.
func storeError(op string, err error) error {
	if isConstraintError(err) {
		return fmt.Errorf("%s: %w: %w", op, attendance.ErrStoreFault, err)
	}
	return fmt.Errorf("%s: %w: %w", op, attendance.ErrStoreUnavailable, err)
}
