// Package postgres provides a PostgreSQL-backed implementation of
// [statestore.Store]. Snapshots are stored as JSONB blobs keyed by session id.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonloop/tutorcore/pkg/statestore"
)

// Compile-time interface check.
var _ statestore.Store = (*Store)(nil)

const ddlAdaptiveState = `
CREATE TABLE IF NOT EXISTS adaptive_state (
    session_id TEXT        PRIMARY KEY,
    snapshot   JSONB       NOT NULL,
    written_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_adaptive_state_written_at
    ON adaptive_state (written_at);
`

// Store is the PostgreSQL-backed adaptive state store.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn and ensures the
// adaptive_state table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("state store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlAdaptiveState); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool wraps an existing pool (shared with the cache store) and
// ensures the adaptive_state table exists.
func NewStoreWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, ddlAdaptiveState); err != nil {
		return nil, fmt.Errorf("state store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Load implements [statestore.Store.Load].
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM adaptive_state WHERE session_id = $1`, sessionID,
	).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
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
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET
		    snapshot   = excluded.snapshot,
		    written_at = excluded.written_at`

	if _, err := s.pool.Exec(ctx, q, sessionID, snapshot); err != nil {
		return fmt.Errorf("state store: save %q: %w", sessionID, err)
	}
	return nil
}

// Delete implements [statestore.Store.Delete].
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM adaptive_state WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("state store: delete %q: %w", sessionID, err)
	}
	return nil
}

// PurgeIdle implements [statestore.Store.PurgeIdle].
func (s *Store) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM adaptive_state WHERE written_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("state store: purge idle: %w", err)
	}
	return tag.RowsAffected(), nil
}
