// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Handles connection setup, pragmas, schema creation and migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Writers take the lock at BEGIN so chunk appends from different
	// connections queue on busy_timeout instead of failing mid-transaction.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if inMemory {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS assets (
			category   TEXT NOT NULL,
			uuid       TEXT NOT NULL,
			ref_id     TEXT,
			username   TEXT,
			file_name  TEXT NOT NULL,
			mime_type  TEXT NOT NULL,
			streaming  INTEGER NOT NULL DEFAULT 0,
			finalized  INTEGER NOT NULL DEFAULT 0,
			size       INTEGER NOT NULL DEFAULT 0,
			metadata   TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (category, uuid)
		);

		CREATE INDEX IF NOT EXISTS idx_assets_ref ON assets(ref_id);

		-- Append-only chunk log; idx is dense per asset starting at 0
		CREATE TABLE IF NOT EXISTS asset_chunks (
			category   TEXT NOT NULL,
			uuid       TEXT NOT NULL,
			idx        INTEGER NOT NULL,
			data       BLOB NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (category, uuid, idx),
			FOREIGN KEY (category, uuid) REFERENCES assets(category, uuid) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS connections (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL,
			name                 TEXT NOT NULL DEFAULT '',
			description          TEXT NOT NULL DEFAULT '',
			base_type            TEXT NOT NULL,
			connection_type_slug TEXT NOT NULL,
			provider_slug        TEXT NOT NULL DEFAULT '',
			status               TEXT NOT NULL DEFAULT 'Created'
				CHECK (status IN ('Created', 'Connecting', 'Active', 'Failed')),
			configuration        TEXT,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_connections_user ON connections(user_id);

		CREATE TABLE IF NOT EXISTS run_usage (
			principal  TEXT NOT NULL,
			period     TEXT NOT NULL,
			runs       INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (principal, period)
		);

		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "assets",
			column: "metadata",
			apply:  `ALTER TABLE assets ADD COLUMN metadata TEXT`,
		},
		{
			table:  "assets",
			column: "streaming",
			apply:  `ALTER TABLE assets ADD COLUMN streaming INTEGER NOT NULL DEFAULT 0`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			m.table+"."+m.column, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// nullString converts empty strings to SQL NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseTime parses an RFC3339Nano timestamp written by this store
func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
