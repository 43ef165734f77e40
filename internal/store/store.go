// Package store persists the checklist, equipment configurations, the
// Default DB and inspection history in a single SQLite file.
//
// Schema changes are appended to the migrations slice; schema_version records
// how many have been applied. Never edit an applied migration.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// Store is a handle on the database. All access goes through one connection.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

var migrations = []string{
	// 1: base schema
	`
	CREATE TABLE equipment_types (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE configurations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		type_id     INTEGER NOT NULL REFERENCES equipment_types(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		UNIQUE (type_id, name)
	);

	CREATE TABLE checklist_items (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		item_name      TEXT NOT NULL UNIQUE,
		spec_min       REAL,
		spec_max       REAL,
		expected_value TEXT NOT NULL DEFAULT '',
		check_type     TEXT NOT NULL DEFAULT 'auto',
		category       TEXT NOT NULL DEFAULT '',
		severity       TEXT NOT NULL DEFAULT 'MEDIUM',
		pattern        TEXT NOT NULL DEFAULT '',
		required       INTEGER NOT NULL DEFAULT 0,
		is_active      INTEGER NOT NULL DEFAULT 1,
		description    TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE exceptions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		configuration_id INTEGER NOT NULL REFERENCES configurations(id) ON DELETE CASCADE,
		item_id          INTEGER NOT NULL REFERENCES checklist_items(id) ON DELETE CASCADE,
		reason           TEXT NOT NULL CHECK (length(trim(reason)) > 0),
		created_by       TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		UNIQUE (configuration_id, item_id)
	);

	CREATE TABLE overrides (
		configuration_id INTEGER NOT NULL REFERENCES configurations(id) ON DELETE CASCADE,
		item_id          INTEGER NOT NULL REFERENCES checklist_items(id) ON DELETE CASCADE,
		spec_min         REAL,
		spec_max         REAL,
		expected_value   TEXT,
		PRIMARY KEY (configuration_id, item_id)
	);

	CREATE TABLE default_values (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		type_id          INTEGER NOT NULL REFERENCES equipment_types(id) ON DELETE CASCADE,
		item_name        TEXT NOT NULL,
		value            TEXT NOT NULL,
		spec_min         REAL,
		spec_max         REAL,
		module           TEXT NOT NULL DEFAULT '',
		part             TEXT NOT NULL DEFAULT '',
		occurrence_count INTEGER NOT NULL DEFAULT 0,
		total_files      INTEGER NOT NULL DEFAULT 0,
		confidence       REAL NOT NULL DEFAULT 0,
		updated_at       TEXT NOT NULL,
		UNIQUE (type_id, item_name)
	);

	CREATE TABLE inspections (
		id               TEXT PRIMARY KEY,
		source           TEXT NOT NULL,
		configuration_id INTEGER,
		inspected_at     TEXT NOT NULL,
		pass             INTEGER NOT NULL,
		passed           INTEGER NOT NULL,
		failed           INTEGER NOT NULL,
		pass_rate        REAL NOT NULL,
		result_yaml      TEXT NOT NULL
	);
	CREATE INDEX idx_inspections_time ON inspections(inspected_at);
	`,
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle, for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the number of applied migrations.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", current, len(migrations))
	}
	for v := current + 1; v <= len(migrations); v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v, err)
		}
		s.logger.Info("applied schema migration", zap.Int("version", v), zap.String("path", s.path))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// classify maps driver errors onto the package sentinels.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed") {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireAffected turns a zero-row update or delete into ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
