package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrSchemaTooNew is returned by Open for a cache written by a newer
// release. Purge or remove the file to rebuild it.
var ErrSchemaTooNew = errors.New("cache schema is newer than supported")

type migration struct {
	version int
	stmt    string
}

// migrations run in order against databases whose user_version is below
// their version. Version 0 is the bare schema.sql table.
var migrations = []migration{
	{1, `CREATE INDEX IF NOT EXISTS idx_introspections_kind_seq ON introspections(kind, seq)`},
}

// schemaVersion is the user_version of a fully migrated cache.
var schemaVersion = migrations[len(migrations)-1].version

// Store is the durable introspection cache.
// SQLite in WAL mode, so concurrent builds can share one file.
type Store struct {
	db *sql.DB
}

// Open opens the cache at path, creating the file and its directory when
// missing, and brings its schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}

	// One connection: SQLite has a single writer and the DSN pragmas
	// then apply to every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// dsn returns the go-sqlite3 data source name for path with the cache's
// connection pragmas. The path is percent-encoded so that '?' and '#'
// in it do not end the URI path.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	u := url.URL{Path: path}
	return "file:" + u.EscapedPath() + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate creates the table and applies pending migrations, each in its
// own transaction together with the user_version bump.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, version, schemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrating to v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating to v%d: %w", m.version, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating to v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrating to v%d: %w", m.version, err)
		}
	}
	return nil
}
