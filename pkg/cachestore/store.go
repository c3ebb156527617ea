// Package cachestore defines the durable storage contract for cached tutoring
// responses.
//
// A cache entry is identified by the hash of its scope-prefixed normalized
// query. Writes are idempotent upserts on that hash, so concurrent writers
// converge on the same row rather than corrupting state. Hit-count increments
// are an approximate popularity signal and are not exactly-once under races.
//
// All interfaces are public so that external packages can supply alternative
// storage backends (Postgres, SQLite, in-memory, …) without depending on
// tutorcore internals. Every implementation must be safe for concurrent use.
package cachestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no entry exists for the given hash.
var ErrNotFound = errors.New("cachestore: entry not found")

// ErrScopedUser is returned by Put when a global-scope entry carries a user id.
// A global entry is shareable across all users and must never be attributed
// to one.
var ErrScopedUser = errors.New("cachestore: global entry must not carry a user id")

// Scope is the breadth of reuse for a cached answer.
type Scope string

const (
	// ScopeGlobal entries are shareable across every user.
	ScopeGlobal Scope = "global"

	// ScopeUser entries are reusable only by the owning user.
	ScopeUser Scope = "user"

	// ScopeSession entries are reusable only within one conversation.
	ScopeSession Scope = "session"
)

// IsValid reports whether s is a recognised cache scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeUser, ScopeSession:
		return true
	}
	return false
}

// Metadata carries provenance information about how a cached response was
// originally produced. It is informational only; lookups never filter on it.
type Metadata struct {
	// OriginalQuery is the raw user text before normalization.
	OriginalQuery string `json:"original_query"`

	// Model is the model identifier that generated the response.
	Model string `json:"model"`

	// TokenCount is the completion token count of the response.
	TokenCount int `json:"token_count"`

	// ResponseLength is the length class the response was generated at
	// (short/medium/detailed).
	ResponseLength string `json:"response_length"`

	// Complexity is the complexity class the query was analysed as.
	Complexity string `json:"complexity"`

	// ContentType is the TTL-tier classification of the query
	// (factual/conceptual/procedural/personalized).
	ContentType string `json:"content_type"`
}

// Entry is a persisted cached response.
type Entry struct {
	// ID is a stable unique identifier (UUID) assigned on first write.
	ID string

	// Hash is the identity key: hash of the scope prefix + normalized query.
	Hash string

	// NormalizedQuery is the canonical query text the hash was derived from.
	// Stored so the fuzzy pass can compare word sets without re-deriving.
	NormalizedQuery string

	// Response is the cached answer text.
	Response string

	// Scope is the breadth of reuse.
	Scope Scope

	// UserID is the owning user. Must be empty for global-scope entries.
	UserID string

	// SessionID is the owning session for session-scope entries.
	SessionID string

	// Subject is an optional subject tag (e.g., "math", "biology").
	Subject string

	// SkillLevel is an optional skill-level tag (e.g., "beginner", "expert").
	SkillLevel string

	// HitCount counts lookups that returned this entry. Approximate.
	HitCount int

	// CreatedAt is when the entry was first written.
	CreatedAt time.Time

	// ExpiresAt is the moment the entry stops being servable. Entries with
	// ExpiresAt before now must never be returned as hits.
	ExpiresAt time.Time

	// LastAccessedAt is refreshed on every hit.
	LastAccessedAt time.Time

	// Metadata records how the response was produced.
	Metadata Metadata
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Validate checks the entry's scope invariants.
func (e *Entry) Validate() error {
	if !e.Scope.IsValid() {
		return errors.New("cachestore: invalid scope")
	}
	if e.Scope == ScopeGlobal && e.UserID != "" {
		return ErrScopedUser
	}
	return nil
}

// Store is the durable CRUD surface for cache entries.
//
// Implementations must be safe for concurrent use. Get intentionally returns
// expired entries: expiry policy is enforced by the caller (the response
// cache), which owns the clock. PurgeExpired is the only method that
// interprets time itself.
type Store interface {
	// Get returns the entry stored under hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (*Entry, error)

	// Put stores entry under entry.Hash, overwriting any previous entry with
	// the same hash (idempotent upsert). Returns ErrScopedUser if a global
	// entry carries a user id.
	Put(ctx context.Context, entry *Entry) error

	// Touch increments the hit counter of the entry under hash and sets its
	// last-accessed time. A missing entry is not an error: the hit counter is
	// an approximate signal and the entry may have been purged concurrently.
	Touch(ctx context.Context, hash string, accessedAt time.Time) error

	// RecentGlobal returns up to limit unexpired-or-not global-scope entries
	// ordered by popularity (hit count, then recency of access, descending).
	// This is the bounded candidate sample for the fuzzy match pass.
	RecentGlobal(ctx context.Context, limit int) ([]Entry, error)

	// Delete removes the entry under hash. Deleting a missing entry is a no-op.
	Delete(ctx context.Context, hash string) error

	// DeleteByUser removes every user- or session-scope entry owned by userID
	// and returns the number removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteBySession removes every session-scope entry owned by sessionID
	// and returns the number removed.
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)

	// PurgeExpired removes every entry whose ExpiresAt is before now and
	// returns the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// Count returns the total number of stored entries.
	Count(ctx context.Context) (int64, error)
}
