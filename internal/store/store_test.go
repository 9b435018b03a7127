package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func pragma(t *testing.T, db *sql.DB, name string) string {
	t.Helper()
	var value string
	require.NoError(t, db.QueryRow("PRAGMA "+name).Scan(&value))
	return value
}

func TestOpenCreatesFileAndDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shieldmeta", "cache.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
}

func TestOpenTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		assert.Equal(t, fmt.Sprint(schemaVersion), pragma(t, s.db, "user_version"))
		require.NoError(t, s.Close())
	}
}

func TestOpenUnusablePath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := Open(filepath.Join(file, "cache.db"))
	assert.ErrorContains(t, err, "creating cache directory")
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpenMigratesBareSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var index string
	err = s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'introspections'`).Scan(&index)
	require.NoError(t, err)
	assert.Equal(t, "idx_introspections_kind_seq", index)
}

func TestCloseWithoutDatabase(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestConnectionPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, "wal", pragma(t, s.db, "journal_mode"))
	assert.Equal(t, "1", pragma(t, s.db, "synchronous")) // NORMAL
	assert.Equal(t, "5000", pragma(t, s.db, "busy_timeout"))
}

func TestOpenPathWithURIDelimiters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "build?v=1#x")
	path := filepath.Join(dir, "cache.db")

	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.FileExists(t, path)
	assert.Equal(t, "wal", pragma(t, s.db, "journal_mode"))
	assert.Equal(t, "5000", pragma(t, s.db, "busy_timeout"))
}

func TestDSNEscapesPath(t *testing.T) {
	got := dsn("/tmp/a?b#c%d/cache.db")
	assert.Equal(t, "file:/tmp/a%3Fb%23c%25d/cache.db?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", got)
}

func TestIntrospectionsColumns(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.db.Query("SELECT name FROM pragma_table_info('introspections') ORDER BY cid")
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"kind", "key", "data", "seq"}, columns)
}
