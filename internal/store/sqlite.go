// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides schema creation, additive migrations and per-operation transactions

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
	db       *sql.DB
	logger   *slog.Logger
	verifier PluginVerifier
	decoder  BatchDecoder
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithPluginVerifier wires the external plugin verifier. Without one,
// plugin parameters are stored as-is.
func WithPluginVerifier(v PluginVerifier) Option {
	return func(s *SQLiteStore) { s.verifier = v }
}

// WithBatchDecoder wires the payload codec used by
// BatchUpdateProxiesByGroup.
func WithBatchDecoder(d BatchDecoder) Option {
	return func(s *SQLiteStore) { s.decoder = d }
}

// NewSQLiteStore opens (creating if necessary) the configuration store at
// the given path. The schema is created and migrated automatically.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// The pragmas ride in the DSN so that every connection the pool opens
	// gets them, not just the one a plain Exec would land on. WAL for
	// concurrent readers, foreign keys for the cascade rules, and a busy
	// timeout instead of failing immediately on a locked database.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
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
		CREATE TABLE IF NOT EXISTS profiles (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			permanent_id BLOB NOT NULL,
			name         TEXT NOT NULL UNIQUE,
			locale       TEXT NOT NULL DEFAULT '',
			last_used_at TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS plugins (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			profile_id     INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			plugin         TEXT NOT NULL,
			plugin_version INTEGER NOT NULL,
			param          BLOB NOT NULL,
			is_entry       INTEGER NOT NULL DEFAULT 0,
			updated_at     TEXT NOT NULL,

			UNIQUE (profile_id, name),
			CHECK (is_entry IN (0, 1))
		);

		CREATE INDEX IF NOT EXISTS idx_plugins_profile ON plugins(profile_id);

		CREATE TABLE IF NOT EXISTS proxy_groups (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			type       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (type IN ('manual', 'subscription'))
		);

		CREATE TABLE IF NOT EXISTS proxies (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id      INTEGER NOT NULL REFERENCES proxy_groups(id) ON DELETE CASCADE,
			name          TEXT NOT NULL,
			order_num     INTEGER NOT NULL,
			proxy         BLOB NOT NULL,
			proxy_version INTEGER NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_proxies_group_order ON proxies(group_id, order_num);

		CREATE TABLE IF NOT EXISTS resources (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			key         TEXT NOT NULL UNIQUE,
			type        TEXT NOT NULL,
			local_file  TEXT NOT NULL,
			remote_type TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (remote_type IN ('url', 'github_release'))
		);

		CREATE TABLE IF NOT EXISTS resources_url (
			resource_id   INTEGER PRIMARY KEY REFERENCES resources(id) ON DELETE CASCADE,
			url           TEXT NOT NULL,
			etag          TEXT,
			last_modified TEXT,
			retrieved_at  TEXT
		);

		CREATE TABLE IF NOT EXISTS resources_github_release (
			resource_id     INTEGER PRIMARY KEY REFERENCES resources(id) ON DELETE CASCADE,
			github_username TEXT NOT NULL,
			github_repo     TEXT NOT NULL,
			asset_name      TEXT NOT NULL,
			git_tag         TEXT,
			release_title   TEXT,
			retrieved_at    TEXT
		);

		CREATE TABLE IF NOT EXISTS proxy_subscriptions (
			proxy_group_id      INTEGER PRIMARY KEY REFERENCES proxy_groups(id) ON DELETE CASCADE,
			resource_id         INTEGER NOT NULL REFERENCES resources(id),
			format              TEXT NOT NULL,
			url                 TEXT NOT NULL,
			upload_bytes_used   INTEGER,
			download_bytes_used INTEGER,
			bytes_total         INTEGER,
			expires_at          TEXT,
			retrieved_at        TEXT
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// Additive column migrations only; older readers of the same major
	// schema version keep working.
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
	}{
		{
			table:  "profiles",
			column: "locale",
			check:  `SELECT 1 FROM pragma_table_info('profiles') WHERE name = 'locale'`,
			apply:  `ALTER TABLE profiles ADD COLUMN locale TEXT NOT NULL DEFAULT ''`,
		},
		{
			table:  "plugins",
			column: "is_entry",
			check:  `SELECT 1 FROM pragma_table_info('plugins') WHERE name = 'is_entry'`,
			apply:  `ALTER TABLE plugins ADD COLUMN is_entry INTEGER NOT NULL DEFAULT 0`,
		},
		{
			table:  "proxy_subscriptions",
			column: "resource_id",
			check:  `SELECT 1 FROM pragma_table_info('proxy_subscriptions') WHERE name = 'resource_id'`,
			// Nullable with no REFERENCES clause: SQLite rejects ADD COLUMN
			// with a foreign key when the default isn't NULL, and legacy rows
			// have no resource to point at anyway.
			apply: `ALTER TABLE proxy_subscriptions ADD COLUMN resource_id INTEGER`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	// The resource_id index lives here rather than in the schema string
	// because on a legacy database the column only exists after the
	// migration above has run.
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_subscriptions_resource ON proxy_subscriptions(resource_id)`); err != nil {
		return fmt.Errorf("creating subscription resource index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// withTx runs fn inside a transaction. The transaction commits only if fn
// returns nil; any error rolls back every write fn made.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// timeFormat is the representation of every timestamp column.
const timeFormat = time.RFC3339

// now returns the current UTC time formatted the way every timestamp
// column stores it.
func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// parseTime decodes a stored timestamp column.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullableTime converts an optional timestamp column to *time.Time.
func nullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableString converts a nullable text column to *string.
func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
