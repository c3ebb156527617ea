// Package postgres provides a PostgreSQL-backed implementation of
// [cachestore.Store].
//
// All operations share a single [pgxpool.Pool]. The schema is installed by
// [NewStore] via CREATE TABLE IF NOT EXISTS, so no external migration tool is
// required.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	err = store.Put(ctx, entry)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonloop/tutorcore/pkg/cachestore"
)

// Compile-time interface check.
var _ cachestore.Store = (*Store)(nil)

const ddlCacheEntries = `
CREATE TABLE IF NOT EXISTS cache_entries (
    id               TEXT         PRIMARY KEY,
    hash             TEXT         NOT NULL UNIQUE,
    normalized_query TEXT         NOT NULL,
    response         TEXT         NOT NULL,
    scope            TEXT         NOT NULL,
    user_id          TEXT         NOT NULL DEFAULT '',
    session_id       TEXT         NOT NULL DEFAULT '',
    subject          TEXT         NOT NULL DEFAULT '',
    skill_level      TEXT         NOT NULL DEFAULT '',
    hit_count        INTEGER      NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ  NOT NULL,
    expires_at       TIMESTAMPTZ  NOT NULL,
    last_accessed_at TIMESTAMPTZ  NOT NULL,
    metadata         JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_scope_popularity
    ON cache_entries (scope, hit_count DESC, last_accessed_at DESC);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at
    ON cache_entries (expires_at);

CREATE INDEX IF NOT EXISTS idx_cache_entries_user_id
    ON cache_entries (user_id);

CREATE INDEX IF NOT EXISTS idx_cache_entries_session_id
    ON cache_entries (session_id);
`

const entryColumns = `id, hash, normalized_query, response, scope, user_id, session_id,
	subject, skill_level, hit_count, created_at, expires_at, last_accessed_at, metadata`

// Store is the PostgreSQL-backed cache entry store.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn and ensures the
// cache_entries table and its indexes exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cache store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlCacheEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get implements [cachestore.Store.Get].
func (s *Store) Get(ctx context.Context, hash string) (*cachestore.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM cache_entries WHERE hash = $1`

	row := s.pool.QueryRow(ctx, q, hash)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cachestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache store: get: %w", err)
	}
	return entry, nil
}

// Put implements [cachestore.Store.Put]. The upsert keeps the original id,
// creation time, and accumulated hit count so that a concurrent rewrite does
// not reset popularity.
func (s *Store) Put(ctx context.Context, entry *cachestore.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("cache store: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO cache_entries
		    (id, hash, normalized_query, response, scope, user_id, session_id,
		     subject, skill_level, hit_count, created_at, expires_at, last_accessed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (hash) DO UPDATE SET
		    normalized_query = excluded.normalized_query,
		    response         = excluded.response,
		    scope            = excluded.scope,
		    user_id          = excluded.user_id,
		    session_id       = excluded.session_id,
		    subject          = excluded.subject,
		    skill_level      = excluded.skill_level,
		    expires_at       = excluded.expires_at,
		    last_accessed_at = excluded.last_accessed_at,
		    metadata         = excluded.metadata`

	_, err = s.pool.Exec(ctx, q,
		id,
		entry.Hash,
		entry.NormalizedQuery,
		entry.Response,
		string(entry.Scope),
		entry.UserID,
		entry.SessionID,
		entry.Subject,
		entry.SkillLevel,
		entry.HitCount,
		entry.CreatedAt,
		entry.ExpiresAt,
		entry.LastAccessedAt,
		meta,
	)
	if err != nil {
		return fmt.Errorf("cache store: put: %w", err)
	}
	return nil
}

// Touch implements [cachestore.Store.Touch].
func (s *Store) Touch(ctx context.Context, hash string, accessedAt time.Time) error {
	const q = `
		UPDATE cache_entries
		SET    hit_count = hit_count + 1, last_accessed_at = $2
		WHERE  hash = $1`

	if _, err := s.pool.Exec(ctx, q, hash, accessedAt); err != nil {
		return fmt.Errorf("cache store: touch: %w", err)
	}
	return nil
}

// RecentGlobal implements [cachestore.Store.RecentGlobal].
func (s *Store) RecentGlobal(ctx context.Context, limit int) ([]cachestore.Entry, error) {
	q := `SELECT ` + entryColumns + `
		FROM   cache_entries
		WHERE  scope = $1
		ORDER  BY hit_count DESC, last_accessed_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, string(cachestore.ScopeGlobal), limit)
	if err != nil {
		return nil, fmt.Errorf("cache store: recent global: %w", err)
	}
	defer rows.Close()

	var entries []cachestore.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("cache store: recent global: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache store: recent global: %w", err)
	}
	return entries, nil
}

// Delete implements [cachestore.Store.Delete].
func (s *Store) Delete(ctx context.Context, hash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE hash = $1`, hash); err != nil {
		return fmt.Errorf("cache store: delete: %w", err)
	}
	return nil
}

// DeleteByUser implements [cachestore.Store.DeleteByUser].
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE user_id = $1 AND scope <> $2`,
		userID, string(cachestore.ScopeGlobal))
	if err != nil {
		return 0, fmt.Errorf("cache store: delete by user: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBySession implements [cachestore.Store.DeleteBySession].
func (s *Store) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE session_id = $1 AND scope = $2`,
		sessionID, string(cachestore.ScopeSession))
	if err != nil {
		return 0, fmt.Errorf("cache store: delete by session: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpired implements [cachestore.Store.PurgeExpired].
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("cache store: purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count implements [cachestore.Store.Count].
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache store: count: %w", err)
	}
	return n, nil
}

// scanEntry reads one cache entry from a row produced with entryColumns.
func scanEntry(row pgx.Row) (*cachestore.Entry, error) {
	var (
		e     cachestore.Entry
		scope string
		meta  []byte
	)
	err := row.Scan(
		&e.ID, &e.Hash, &e.NormalizedQuery, &e.Response, &scope, &e.UserID,
		&e.SessionID, &e.Subject, &e.SkillLevel, &e.HitCount,
		&e.CreatedAt, &e.ExpiresAt, &e.LastAccessedAt, &meta,
	)
	if err != nil {
		return nil, err
	}
	e.Scope = cachestore.Scope(scope)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &e, nil
}
