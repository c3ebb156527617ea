package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/respcache"
	"github.com/lessonloop/tutorcore/pkg/cachestore"
	"github.com/lessonloop/tutorcore/pkg/statestore"
)

// fakeClock is a mutable time source shared across the components under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestSweeperRunOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()

	cacheStore := cachestore.NewMemStore()
	cache := respcache.New(cacheStore, respcache.WithClock(clock.Now))
	if err := cache.Write(ctx, respcache.WriteRequest{
		Query:    "what is photosynthesis",
		Response: "Photosynthesis converts light energy into chemical energy.",
	}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	states := statestore.NewMemStore()
	states.Now = clock.Now
	if err := states.Save(ctx, "sess-1", []byte(`{"message_count":4}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	enforcer := guardrails.NewEnforcer(guardrails.DefaultPolicy(), guardrails.WithClock(clock.Now))
	enforcer.RecordTokens("sess-1", 100)

	s := NewSweeper(cache, states, enforcer, 30*time.Minute, WithClock(clock.Now))

	// Nothing is stale yet.
	s.RunOnce(ctx)
	if n, _ := cacheStore.Count(ctx); n != 1 {
		t.Fatalf("cache entries after fresh sweep = %d, want 1", n)
	}
	if enforcer.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions() = %d, want 1", enforcer.ActiveSessions())
	}

	// Eight days later everything has aged out.
	clock.Advance(8 * 24 * time.Hour)
	s.RunOnce(ctx)

	if n, _ := cacheStore.Count(ctx); n != 0 {
		t.Errorf("cache entries after stale sweep = %d, want 0", n)
	}
	if _, err := states.Load(ctx, "sess-1"); !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	if enforcer.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() = %d, want 0", enforcer.ActiveSessions())
	}
}

func TestSweeperRunOnceNilStores(t *testing.T) {
	t.Parallel()

	enforcer := guardrails.NewEnforcer(guardrails.DefaultPolicy())
	s := NewSweeper(nil, nil, enforcer, time.Hour)
	s.RunOnce(context.Background()) // must not panic
}

func TestSweeperStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := NewSweeper(nil, nil, nil, time.Hour)
	if err := s.Start("not a cron expression"); err == nil {
		t.Fatal("Start() with invalid schedule: expected error")
	}
}

func TestSweeperStartTwice(t *testing.T) {
	t.Parallel()

	s := NewSweeper(nil, nil, nil, time.Hour)
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start("@every 1h"); err == nil {
		t.Fatal("second Start(): expected error")
	}
}
