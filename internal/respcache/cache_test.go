package respcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lessonloop/tutorcore/pkg/cachestore"
)

// fakeClock is a mutable time source shared between the cache and the test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(t *testing.T) (*Cache, *cachestore.MemStore, *fakeClock) {
	t.Helper()
	store := cachestore.NewMemStore()
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return New(store, WithClock(clk.Now)), store, clk
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "What is mitosis?",
		Response: "Mitosis is cell division producing two identical daughter cells.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	hit, ok := cache.Lookup(ctx, LookupRequest{Query: "what's mitosis"})
	if !ok {
		t.Fatal("expected hit for paraphrased query")
	}
	if hit.Fuzzy {
		t.Error("paraphrase colliding under normalization should be an exact hit")
	}
	if hit.Scope != cachestore.ScopeGlobal {
		t.Errorf("scope = %q, want global", hit.Scope)
	}
	if hit.Response == "" {
		t.Error("hit carries empty response")
	}
}

func TestCacheMiss(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)

	if _, ok := cache.Lookup(context.Background(), LookupRequest{Query: "explain entropy"}); ok {
		t.Error("expected miss on empty cache")
	}
	if s := cache.Stats(); s.Misses != 1 || s.Hits != 0 {
		t.Errorf("stats = %+v, want 1 miss 0 hits", s)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	cache, _, clk := newTestCache(t)
	ctx := context.Background()

	// User-scoped entries live on the 24h tier regardless of content.
	err := cache.Write(ctx, WriteRequest{
		Query:        "summarize my study plan for this week",
		Response:     "You planned three algebra sessions and one essay review.",
		UserID:       "u1",
		Personalized: true,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	req := LookupRequest{Query: "summarize my study plan for this week", UserID: "u1", Personalized: true}

	clk.Advance(23 * time.Hour)
	if _, ok := cache.Lookup(ctx, req); !ok {
		t.Fatal("expected hit at 23h, inside the 24h tier")
	}

	clk.Advance(2 * time.Hour)
	if _, ok := cache.Lookup(ctx, req); ok {
		t.Fatal("expected miss at 25h, past the 24h tier")
	}
}

func TestCacheFactualTTLTier(t *testing.T) {
	t.Parallel()

	cache, _, clk := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "what is the capital of France",
		Response: "Paris.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	req := LookupRequest{Query: "what is the capital of France"}

	clk.Advance(6 * 24 * time.Hour)
	if _, ok := cache.Lookup(ctx, req); !ok {
		t.Fatal("expected hit at 6d, inside the factual 7d tier")
	}

	clk.Advance(2 * 24 * time.Hour)
	if _, ok := cache.Lookup(ctx, req); ok {
		t.Fatal("expected miss at 8d, past the factual 7d tier")
	}
}

func TestCacheTTLTierOverride(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	cache := New(cachestore.NewMemStore(),
		WithClock(clk.Now),
		WithTTLTiers(TTLTiers{Factual: time.Hour}),
	)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "what is the capital of France",
		Response: "Paris.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	req := LookupRequest{Query: "what is the capital of France"}

	clk.Advance(2 * time.Hour)
	if _, ok := cache.Lookup(ctx, req); ok {
		t.Fatal("expected miss at 2h, past the shortened factual tier")
	}

	// Unset tiers keep their defaults.
	if got := cache.ttl.Conceptual; got != DefaultTTLTiers().Conceptual {
		t.Errorf("conceptual tier = %s, want default", got)
	}
}

func TestCacheFuzzyGlobalMatch(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "explain photosynthesis in green plants simply",
		Response: "Plants convert light into chemical energy.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Same word set, different order: misses the exact key, caught by the
	// similarity pass.
	hit, ok := cache.Lookup(ctx, LookupRequest{Query: "explain photosynthesis simply in green plants"})
	if !ok {
		t.Fatal("expected fuzzy hit for reordered query")
	}
	if !hit.Fuzzy {
		t.Error("hit should be marked fuzzy")
	}
	if hit.Similarity <= jaccardThreshold {
		t.Errorf("similarity = %v, want > %v", hit.Similarity, jaccardThreshold)
	}

	if s := cache.Stats(); s.FuzzyHits != 1 {
		t.Errorf("fuzzy hits = %d, want 1", s.FuzzyHits)
	}
}

func TestCacheFuzzyRejectsDissimilar(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "explain photosynthesis in green plants simply",
		Response: "Plants convert light into chemical energy.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, ok := cache.Lookup(ctx, LookupRequest{Query: "explain cellular respiration in animals"}); ok {
		t.Error("dissimilar query must not fuzzy-match")
	}
}

func TestCacheFuzzySkipsUserScope(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "explain photosynthesis in green plants simply",
		Response: "Plants convert light into chemical energy.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// With a user id the lookup key is user-scoped, so the global fuzzy
	// pass must not run.
	if _, ok := cache.Lookup(ctx, LookupRequest{Query: "explain photosynthesis simply in green plants", UserID: "u1"}); ok {
		t.Error("user-scoped lookup must not fall back to global fuzzy match")
	}
}

func TestCacheNotCacheable(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  WriteRequest
	}{
		{"query too short", WriteRequest{Query: "hi", Response: "Hello!"}},
		{"empty response", WriteRequest{Query: "explain thermodynamics", Response: ""}},
		{"oversized response", WriteRequest{Query: "explain thermodynamics", Response: string(make([]byte, maxResponseLength+1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cache.Write(ctx, tt.req)
			if !errors.Is(err, ErrNotCacheable) {
				t.Errorf("Write = %v, want ErrNotCacheable", err)
			}
		})
	}

	if s := cache.Stats(); s.Rejected != 3 || s.Writes != 0 {
		t.Errorf("stats = %+v, want 3 rejected 0 writes", s)
	}
}

func TestCacheUserIsolation(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "check my algebra homework from today",
		Response: "Problems 2 and 5 have sign errors.",
		UserID:   "alice",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, ok := cache.Lookup(ctx, LookupRequest{Query: "check my algebra homework from today", UserID: "bob"}); ok {
		t.Error("bob must not see alice's user-scoped entry")
	}
	if _, ok := cache.Lookup(ctx, LookupRequest{Query: "check my algebra homework from today", UserID: "alice"}); !ok {
		t.Error("alice should hit her own entry")
	}
}

func TestCacheInvalidateUser(t *testing.T) {
	t.Parallel()

	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "check my algebra homework from today",
		Response: "Problems 2 and 5 have sign errors.",
		UserID:   "alice",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := cache.InvalidateUser(ctx, "alice"); err != nil {
		t.Fatalf("InvalidateUser: %v", err)
	}
	if _, ok := cache.Lookup(ctx, LookupRequest{Query: "check my algebra homework from today", UserID: "alice"}); ok {
		t.Error("entry should be gone after user invalidation")
	}
}

func TestCacheCleanupExpired(t *testing.T) {
	t.Parallel()

	cache, store, clk := newTestCache(t)
	ctx := context.Background()

	writes := []WriteRequest{
		{Query: "what is the capital of France", Response: "Paris."},
		{Query: "explain my mistake in problem three", Response: "You dropped a negative sign.", UserID: "u1"},
	}
	for _, w := range writes {
		if err := cache.Write(ctx, w); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	// 25h: the user-scoped 24h entry is expired, the factual 7d one is not.
	clk.Advance(25 * time.Hour)
	removed, err := cache.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after cleanup = %d, want 1", count)
	}
}

func TestCacheHotPath(t *testing.T) {
	t.Parallel()

	cache, store, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "what is the capital of France",
		Response: "Paris.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	req := LookupRequest{Query: "what is the capital of France"}
	for i := 0; i < 3; i++ {
		if _, ok := cache.Lookup(ctx, req); !ok {
			t.Fatalf("lookup %d: expected hit", i)
		}
	}

	if s := cache.Stats(); s.Hits != 3 || s.Misses != 0 {
		t.Errorf("stats = %+v, want 3 hits 0 misses", s)
	}

	// Hot hits still count against the store's hit counter via Touch.
	key := Key(cachestore.ScopeGlobal, "", "", Normalize("what is the capital of France"))
	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.HitCount != 3 {
		t.Errorf("store hit count = %d, want 3", entry.HitCount)
	}
}

func TestHotCacheUsesInjectedClock(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	// Option order must not matter: the hot cache has to end up on the
	// injected clock even when WithHotCache is applied first.
	cache := New(cachestore.NewMemStore(),
		WithHotCache(8, time.Minute),
		WithClock(clk.Now),
	)
	ctx := context.Background()

	err := cache.Write(ctx, WriteRequest{
		Query:    "what is the capital of France",
		Response: "Paris.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	req := LookupRequest{Query: "what is the capital of France"}
	if _, ok := cache.Lookup(ctx, req); !ok {
		t.Fatal("expected a store hit to seed the hot cache")
	}

	key := Key(cachestore.ScopeGlobal, "", "", Normalize("what is the capital of France"))
	if _, ok := cache.hot.get(key); !ok {
		t.Fatal("hot cache should hold the entry right after the lookup")
	}

	clk.Advance(2 * time.Minute)
	if _, ok := cache.hot.get(key); ok {
		t.Error("hot entry should expire on the injected clock")
	}
}

func TestHotCacheEviction(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	hot := newHotCache(2, time.Minute, clk.Now)
	far := clk.Now().Add(time.Hour)

	hot.put("a", "a", "ra", far)
	clk.Advance(time.Second)
	hot.put("b", "b", "rb", far)
	clk.Advance(time.Second)
	hot.put("c", "c", "rc", far)

	if _, ok := hot.get("a"); ok {
		t.Error("oldest key should have been evicted")
	}
	if _, ok := hot.get("b"); !ok {
		t.Error("key b should survive")
	}
	if _, ok := hot.get("c"); !ok {
		t.Error("key c should survive")
	}
	if hot.len() != 2 {
		t.Errorf("len = %d, want 2", hot.len())
	}
}

func TestHotCacheRespectsStoreExpiry(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	hot := newHotCache(8, 10*time.Minute, clk.Now)

	// Backing entry expires before the hot TTL would.
	hot.put("k", "k", "r", clk.Now().Add(30*time.Second))
	clk.Advance(time.Minute)

	if _, ok := hot.get("k"); ok {
		t.Error("hot entry must not outlive the backing store entry")
	}
}
