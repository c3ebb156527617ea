// Package sqlite provides an embedded single-file implementation of
// [cachestore.Store] backed by modernc.org/sqlite (pure Go, no cgo).
//
// It is intended for deployments that do not run PostgreSQL, such as
// development boxes and single-node installs. The schema is installed on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lessonloop/tutorcore/pkg/cachestore"
)

// Compile-time interface check.
var _ cachestore.Store = (*Store)(nil)

const ddlCacheEntries = `
CREATE TABLE IF NOT EXISTS cache_entries (
    id               TEXT    PRIMARY KEY,
    hash             TEXT    NOT NULL UNIQUE,
    normalized_query TEXT    NOT NULL,
    response         TEXT    NOT NULL,
    scope            TEXT    NOT NULL,
    user_id          TEXT    NOT NULL DEFAULT '',
    session_id       TEXT    NOT NULL DEFAULT '',
    subject          TEXT    NOT NULL DEFAULT '',
    skill_level      TEXT    NOT NULL DEFAULT '',
    hit_count        INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    expires_at       INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    metadata         TEXT    NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_scope_popularity
    ON cache_entries (scope, hit_count DESC, last_accessed_at DESC);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at
    ON cache_entries (expires_at);
`

const entryColumns = `id, hash, normalized_query, response, scope, user_id, session_id,
	subject, skill_level, hit_count, created_at, expires_at, last_accessed_at, metadata`

// Store is the SQLite-backed cache entry store.
// database/sql serialises access; all methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path and ensures the
// cache_entries table exists. Timestamps are stored as Unix nanoseconds.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache store: open sqlite %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlCacheEntries); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements [cachestore.Store.Get].
func (s *Store) Get(ctx context.Context, hash string) (*cachestore.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM cache_entries WHERE hash = ?`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, q, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cachestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache store: get: %w", err)
	}
	return entry, nil
}

// Put implements [cachestore.Store.Put].
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
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

	_, err = s.db.ExecContext(ctx, q,
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
		entry.CreatedAt.UnixNano(),
		entry.ExpiresAt.UnixNano(),
		entry.LastAccessedAt.UnixNano(),
		string(meta),
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
		SET    hit_count = hit_count + 1, last_accessed_at = ?
		WHERE  hash = ?`

	if _, err := s.db.ExecContext(ctx, q, accessedAt.UnixNano(), hash); err != nil {
		return fmt.Errorf("cache store: touch: %w", err)
	}
	return nil
}

// RecentGlobal implements [cachestore.Store.RecentGlobal].
func (s *Store) RecentGlobal(ctx context.Context, limit int) ([]cachestore.Entry, error) {
	q := `SELECT ` + entryColumns + `
		FROM   cache_entries
		WHERE  scope = ?
		ORDER  BY hit_count DESC, last_accessed_at DESC
		LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, string(cachestore.ScopeGlobal), limit)
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("cache store: delete: %w", err)
	}
	return nil
}

// DeleteByUser implements [cachestore.Store.DeleteByUser].
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE user_id = ? AND scope <> ?`,
		userID, string(cachestore.ScopeGlobal))
	if err != nil {
		return 0, fmt.Errorf("cache store: delete by user: %w", err)
	}
	return res.RowsAffected()
}

// DeleteBySession implements [cachestore.Store.DeleteBySession].
func (s *Store) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE session_id = ? AND scope = ?`,
		sessionID, string(cachestore.ScopeSession))
	if err != nil {
		return 0, fmt.Errorf("cache store: delete by session: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpired implements [cachestore.Store.PurgeExpired].
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache store: purge expired: %w", err)
	}
	return res.RowsAffected()
}

// Count implements [cachestore.Store.Count].
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache store: count: %w", err)
	}
	return n, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

// scanEntry reads one cache entry from a row produced with entryColumns.
func scanEntry(row scanner) (*cachestore.Entry, error) {
	var (
		e                          cachestore.Entry
		scope, meta                string
		created, expires, accessed int64
	)
	err := row.Scan(
		&e.ID, &e.Hash, &e.NormalizedQuery, &e.Response, &scope, &e.UserID,
		&e.SessionID, &e.Subject, &e.SkillLevel, &e.HitCount,
		&created, &expires, &accessed, &meta,
	)
	if err != nil {
		return nil, err
	}
	e.Scope = cachestore.Scope(scope)
	e.CreatedAt = time.Unix(0, created)
	e.ExpiresAt = time.Unix(0, expires)
	e.LastAccessedAt = time.Unix(0, accessed)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &e, nil
}
