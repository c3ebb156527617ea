package cachestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testEntry(hash string, scope Scope) *Entry {
	e := &Entry{
		Hash:            hash,
		NormalizedQuery: "what is photosynthesis",
		Response:        "Photosynthesis converts light into chemical energy.",
		Scope:           scope,
		CreatedAt:       testTime,
		ExpiresAt:       testTime.Add(24 * time.Hour),
		LastAccessedAt:  testTime,
	}
	switch scope {
	case ScopeUser:
		e.UserID = "alice"
	case ScopeSession:
		e.UserID = "alice"
		e.SessionID = "sess-1"
	}
	return e
}

func TestMemStorePutGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Put(ctx, testEntry("h1", ScopeGlobal)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.NormalizedQuery != "what is photosynthesis" {
		t.Errorf("NormalizedQuery = %q", got.NormalizedQuery)
	}
	if got.ID == "" {
		t.Error("Put did not assign an ID")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemStorePutRejectsGlobalWithUser(t *testing.T) {
	t.Parallel()

	e := testEntry("h1", ScopeGlobal)
	e.UserID = "alice"
	if err := NewMemStore().Put(context.Background(), e); !errors.Is(err, ErrScopedUser) {
		t.Errorf("Put() error = %v, want ErrScopedUser", err)
	}
}

func TestMemStoreUpsertKeepsIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Put(ctx, testEntry("h1", ScopeGlobal)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	first, _ := s.Get(ctx, "h1")
	if err := s.Touch(ctx, "h1", testTime.Add(time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	updated := testEntry("h1", ScopeGlobal)
	updated.Response = "A newer answer."
	if err := s.Put(ctx, updated); err != nil {
		t.Fatalf("Put() upsert error = %v", err)
	}

	got, _ := s.Get(ctx, "h1")
	if got.Response != "A newer answer." {
		t.Errorf("Response = %q, want the upserted text", got.Response)
	}
	if got.ID != first.ID {
		t.Errorf("ID changed on upsert: %q -> %q", first.ID, got.ID)
	}
	if got.HitCount != 1 {
		t.Errorf("HitCount = %d, want popularity preserved", got.HitCount)
	}
}

func TestMemStoreTouch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Put(ctx, testEntry("h1", ScopeGlobal)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	at := testTime.Add(time.Hour)
	if err := s.Touch(ctx, "h1", at); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	got, _ := s.Get(ctx, "h1")
	if got.HitCount != 1 {
		t.Errorf("HitCount = %d, want 1", got.HitCount)
	}
	if !got.LastAccessedAt.Equal(at) {
		t.Errorf("LastAccessedAt = %v, want %v", got.LastAccessedAt, at)
	}

	// Touching a purged entry is a silent no-op.
	if err := s.Touch(ctx, "missing", at); err != nil {
		t.Errorf("Touch(missing) error = %v, want nil", err)
	}
}

func TestMemStoreRecentGlobal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	popular := testEntry("h-popular", ScopeGlobal)
	popular.HitCount = 9
	quiet := testEntry("h-quiet", ScopeGlobal)
	private := testEntry("h-private", ScopeUser)

	for _, e := range []*Entry{popular, quiet, private} {
		if err := s.Put(ctx, e); err != nil {
			t.Fatalf("Put(%s) error = %v", e.Hash, err)
		}
	}
	got, err := s.RecentGlobal(ctx, 10)
	if err != nil {
		t.Fatalf("RecentGlobal() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentGlobal() returned %d entries, want 2 (globals only)", len(got))
	}
	if got[0].Hash != "h-popular" {
		t.Errorf("first entry = %q, want the most popular", got[0].Hash)
	}

	limited, _ := s.RecentGlobal(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("RecentGlobal(1) returned %d entries, want 1", len(limited))
	}
}

func TestMemStoreDeleteByUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	s.Put(ctx, testEntry("h-user", ScopeUser))
	s.Put(ctx, testEntry("h-sess", ScopeSession))
	s.Put(ctx, testEntry("h-global", ScopeGlobal))

	n, err := s.DeleteByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteByUser() = %d, want 2", n)
	}
	// Global entries are shared and never swept by user deletion.
	if _, err := s.Get(ctx, "h-global"); err != nil {
		t.Errorf("global entry removed by DeleteByUser: %v", err)
	}
}

func TestMemStoreDeleteBySession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	s.Put(ctx, testEntry("h-sess", ScopeSession))
	s.Put(ctx, testEntry("h-user", ScopeUser))

	n, err := s.DeleteBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("DeleteBySession() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteBySession() = %d, want 1", n)
	}
	if _, err := s.Get(ctx, "h-user"); err != nil {
		t.Errorf("user entry removed by DeleteBySession: %v", err)
	}
}

func TestMemStorePurgeExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	fresh := testEntry("h-fresh", ScopeGlobal)
	stale := testEntry("h-stale", ScopeGlobal)
	stale.ExpiresAt = testTime.Add(-time.Hour)
	s.Put(ctx, fresh)
	s.Put(ctx, stale)

	n, err := s.PurgeExpired(ctx, testTime)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if c, _ := s.Count(ctx); c != 1 {
		t.Errorf("Count() = %d, want 1", c)
	}
}
