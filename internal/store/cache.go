package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/outpost-os/shieldmeta/internal/toolchain"
)

// MaxEntriesPerKind bounds the rows kept for one kind.
const MaxEntriesPerKind = 256

var _ toolchain.Cache = (*Store)(nil)

// Get returns the cached data for (kind, key).
// A miss returns ok=false and a nil error.
func (s *Store) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM introspections
		WHERE kind = ? AND key = ?
	`, kind, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", kind, err)
	}
	return data, true, nil
}

// Put stores data under (kind, key), replacing any previous entry, and
// evicts the oldest rows of kind beyond MaxEntriesPerKind.
// Runs in a single transaction.
func (s *Store) Put(ctx context.Context, kind, key string, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %s: begin: %w", kind, err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM introspections`).Scan(&seq); err != nil {
		return fmt.Errorf("put %s: next seq: %w", kind, err)
	}

	if data == nil {
		data = []byte{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO introspections (kind, key, data, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET data = excluded.data, seq = excluded.seq
	`, kind, key, data, seq)
	if err != nil {
		return fmt.Errorf("put %s: %w", kind, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM introspections
		WHERE kind = ? AND seq NOT IN (
			SELECT seq FROM introspections WHERE kind = ?
			ORDER BY seq DESC LIMIT ?
		)
	`, kind, kind, MaxEntriesPerKind)
	if err != nil {
		return fmt.Errorf("put %s: evict: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %s: commit: %w", kind, err)
	}
	return nil
}

// Count returns the number of cached entries of kind, or of all kinds when
// kind is empty.
func (s *Store) Count(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM introspections
		WHERE ? = '' OR kind = ?
	`, kind, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Purge deletes every entry of kind, or all entries when kind is empty.
// Returns the number of deleted rows.
func (s *Store) Purge(ctx context.Context, kind string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if kind == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM introspections`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM introspections WHERE kind = ?`, kind)
	}
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return res.RowsAffected()
}
