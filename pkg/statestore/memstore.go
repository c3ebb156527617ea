package statestore

import (
	"context"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// snapshotRecord pairs a stored blob with its last write time.
type snapshotRecord struct {
	data      []byte
	writtenAt time.Time
}

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for testing and single-process development use.
type MemStore struct {
	// Now is the clock used to stamp writes. Defaults to time.Now.
	Now func() time.Time

	mu        sync.RWMutex
	snapshots map[string]snapshotRecord
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		Now:       time.Now,
		snapshots: make(map[string]snapshotRecord),
	}
}

// Load implements [Store.Load].
func (s *MemStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.snapshots[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(rec.data))
	copy(out, rec.data)
	return out, nil
}

// Save implements [Store.Save].
func (s *MemStore) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	stored := make([]byte, len(snapshot))
	copy(stored, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[sessionID] = snapshotRecord{data: stored, writtenAt: s.Now()}
	return nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

// PurgeIdle implements [Store.PurgeIdle].
func (s *MemStore) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.snapshots {
		if rec.writtenAt.Before(cutoff) {
			delete(s.snapshots, id)
			n++
		}
	}
	return n, nil
}
