package cachestore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for testing and single-process development use; it is not a
// source of truth across processes.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]Entry),
	}
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, hash string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Put implements [Store.Put].
func (s *MemStore) Put(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	if prev, ok := s.entries[entry.Hash]; ok {
		// Upsert keeps the original identity and accumulated popularity.
		stored.ID = prev.ID
		stored.HitCount = prev.HitCount
		stored.CreatedAt = prev.CreatedAt
	} else if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.entries[entry.Hash] = stored
	return nil
}

// Touch implements [Store.Touch].
func (s *MemStore) Touch(ctx context.Context, hash string, accessedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hash]
	if !ok {
		return nil
	}
	e.HitCount++
	e.LastAccessedAt = accessedAt
	s.entries[hash] = e
	return nil
}

// RecentGlobal implements [Store.RecentGlobal].
func (s *MemStore) RecentGlobal(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Entry
	for _, e := range s.entries {
		if e.Scope == ScopeGlobal {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b Entry) int {
		if a.HitCount != b.HitCount {
			return b.HitCount - a.HitCount
		}
		return b.LastAccessedAt.Compare(a.LastAccessedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, hash)
	return nil
}

// DeleteByUser implements [Store.DeleteByUser].
func (s *MemStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, e := range s.entries {
		if e.UserID == userID && e.Scope != ScopeGlobal {
			delete(s.entries, hash)
			n++
		}
	}
	return n, nil
}

// DeleteBySession implements [Store.DeleteBySession].
func (s *MemStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, e := range s.entries {
		if e.Scope == ScopeSession && e.SessionID == sessionID {
			delete(s.entries, hash)
			n++
		}
	}
	return n, nil
}

// PurgeExpired implements [Store.PurgeExpired].
func (s *MemStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, hash)
			n++
		}
	}
	return n, nil
}

// Count implements [Store.Count].
func (s *MemStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}
