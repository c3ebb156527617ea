// Package sqlite provides an embedded single-file implementation of
// [statestore.Store] backed by modernc.org/sqlite (pure Go, no cgo).
//
// Like its cache store sibling it targets deployments without PostgreSQL.
// The schema is installed on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lessonloop/tutorcore/pkg/statestore"
)

// Compile-time interface check.
var _ statestore.Store = (*Store)(nil)

const ddlAdaptiveState = `
CREATE TABLE IF NOT EXISTS adaptive_state (
    session_id TEXT    PRIMARY KEY,
    snapshot   BLOB    NOT NULL,
    written_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adaptive_state_written_at
    ON adaptive_state (written_at);
`

// Store is the SQLite-backed adaptive state store.
// database/sql serialises access; all methods are safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the SQLite database at path and ensures the
// adaptive_state table exists. Timestamps are stored as Unix nanoseconds.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state store: open sqlite %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlAdaptiveState); err != nil {
		db.Close()
		return nil, fmt.Errorf("state store: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements [statestore.Store.Load].
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var snapshot []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM adaptive_state WHERE session_id = ?`, sessionID,
	).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, statestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state store: load %q: %w", sessionID, err)
	}
	return snapshot, nil
}

// Save implements [statestore.Store.Save].
func (s *Store) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	const q = `
		INSERT INTO adaptive_state (session_id, snapshot, written_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
		    snapshot   = excluded.snapshot,
		    written_at = excluded.written_at`

	if _, err := s.db.ExecContext(ctx, q, sessionID, snapshot, s.now().UnixNano()); err != nil {
		return fmt.Errorf("state store: save %q: %w", sessionID, err)
	}
	return nil
}

// Delete implements [statestore.Store.Delete].
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM adaptive_state WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("state store: delete %q: %w", sessionID, err)
	}
	return nil
}

// PurgeIdle implements [statestore.Store.PurgeIdle].
func (s *Store) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM adaptive_state WHERE written_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("state store: purge idle: %w", err)
	}
	return res.RowsAffected()
}
