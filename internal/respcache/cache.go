package respcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/lessonloop/tutorcore/internal/observe"
	"github.com/lessonloop/tutorcore/pkg/cachestore"
)

// ErrNotCacheable indicates the query or response fails the cacheability
// rules and was not written. Callers treat this as informational.
var ErrNotCacheable = errors.New("respcache: not cacheable")

const (
	// minQueryLength is the minimum normalized query length worth caching.
	// Very short queries are too ambiguous to key safely.
	minQueryLength = 10

	// maxResponseLength caps stored responses. Anything longer is almost
	// certainly session-specific prose that will not be asked verbatim again.
	maxResponseLength = 8192

	// fuzzy match thresholds for the global-scope second pass.
	jaccardThreshold     = 0.85
	jaroWinklerThreshold = 0.80

	// fuzzySampleLimit bounds how many recent global entries the fuzzy
	// pass compares against on a miss.
	fuzzySampleLimit = 50
)

// TTLTiers holds the retention per content type. User and session scoped
// entries are always capped at the Personalized tier regardless of content
// classification.
type TTLTiers struct {
	Factual      time.Duration
	Conceptual   time.Duration
	Procedural   time.Duration
	Personalized time.Duration
}

// DefaultTTLTiers returns the standard retention tiers.
func DefaultTTLTiers() TTLTiers {
	return TTLTiers{
		Factual:      7 * 24 * time.Hour,
		Conceptual:   3 * 24 * time.Hour,
		Procedural:   24 * time.Hour,
		Personalized: 24 * time.Hour,
	}
}

// withDefaults fills zero fields from [DefaultTTLTiers].
func (t TTLTiers) withDefaults() TTLTiers {
	def := DefaultTTLTiers()
	if t.Factual <= 0 {
		t.Factual = def.Factual
	}
	if t.Conceptual <= 0 {
		t.Conceptual = def.Conceptual
	}
	if t.Procedural <= 0 {
		t.Procedural = def.Procedural
	}
	if t.Personalized <= 0 {
		t.Personalized = def.Personalized
	}
	return t
}

// Hit describes a successful cache lookup.
type Hit struct {
	Response string
	Scope    cachestore.Scope
	// Fuzzy is true when the hit came from the similarity pass rather
	// than an exact key match.
	Fuzzy bool
	// Similarity is the Jaccard score for fuzzy hits, 1.0 for exact hits.
	Similarity float64
	HitCount   int
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	FuzzyHits int64
	Writes    int64
	Rejected  int64
}

// HitRate returns hits over total lookups, 0 when there were none.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache layers a short-TTL in-process hot cache over a persistent store and
// applies scope selection, TTL tiering and fuzzy matching policy.
type Cache struct {
	store       cachestore.Store
	hot         *hotCache
	log         *slog.Logger
	now         func() time.Time
	metrics     *observe.Metrics
	ttl         TTLTiers
	hotCapacity int
	hotTTL      time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	fuzzyHits atomic.Int64
	writes    atomic.Int64
	rejected  atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for degradation warnings.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics enables lookup instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTTLTiers overrides the retention tiers. Zero fields keep their
// defaults.
func WithTTLTiers(t TTLTiers) Option {
	return func(c *Cache) {
		c.ttl = t.withDefaults()
	}
}

// WithHotCache tunes the in-process front cache. Non-positive values keep
// the defaults (64 entries, 5 minutes).
func WithHotCache(capacity int, ttl time.Duration) Option {
	return func(c *Cache) {
		c.hotCapacity = capacity
		c.hotTTL = ttl
	}
}

// New creates a Cache backed by store.
func New(store cachestore.Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	// The hot cache is built after all options so it shares whatever clock
	// the cache ends up with.
	c.hot = newHotCache(c.hotCapacity, c.hotTTL, c.now)
	if c.ttl == (TTLTiers{}) {
		c.ttl = DefaultTTLTiers()
	}
	return c
}

// LookupRequest identifies a query and the identity context it runs under.
type LookupRequest struct {
	Query     string
	UserID    string
	SessionID string
	// Personalized forces user or session scope for the lookup key, for
	// queries the caller already knows reference the user's own work.
	Personalized bool
}

// Lookup checks the hot cache, then the store under the chosen scope key,
// then falls back to a fuzzy pass over recent global entries. Store errors
// degrade to a miss. Expired entries are never returned.
func (c *Cache) Lookup(ctx context.Context, req LookupRequest) (*Hit, bool) {
	start := time.Now()

	normalized := Normalize(req.Query)
	if normalized == "" {
		c.misses.Add(1)
		return nil, false
	}

	scope := ChooseScope(normalized, req.UserID, req.Personalized)
	key := Key(scope, req.UserID, req.SessionID, normalized)

	if he, ok := c.hot.get(key); ok {
		c.hits.Add(1)
		if err := c.store.Touch(ctx, he.entry, c.now()); err != nil && !errors.Is(err, cachestore.ErrNotFound) {
			c.log.Debug("cache touch failed", "error", err)
		}
		c.observeLookup(ctx, scope, "hit", start)
		return &Hit{Response: he.response, Scope: scope, Similarity: 1.0}, true
	}

	now := c.now()
	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil && !entry.Expired(now):
		c.hits.Add(1)
		c.hot.put(key, entry.Hash, entry.Response, entry.ExpiresAt)
		if terr := c.store.Touch(ctx, entry.Hash, now); terr != nil {
			c.log.Debug("cache touch failed", "error", terr)
		}
		c.observeLookup(ctx, scope, "hit", start)
		return &Hit{Response: entry.Response, Scope: entry.Scope, Similarity: 1.0, HitCount: entry.HitCount + 1}, true
	case err != nil && !errors.Is(err, cachestore.ErrNotFound):
		c.log.Warn("cache store lookup failed, treating as miss", "error", err)
		c.misses.Add(1)
		c.observeLookup(ctx, scope, "miss", start)
		return nil, false
	}

	// Exact miss. For queries that would live in the global scope, try a
	// similarity pass over recent popular global entries.
	if scope == cachestore.ScopeGlobal {
		if hit := c.fuzzyLookup(ctx, normalized, now); hit != nil {
			c.hits.Add(1)
			c.fuzzyHits.Add(1)
			c.observeLookup(ctx, scope, "fuzzy", start)
			return hit, true
		}
	}

	c.misses.Add(1)
	c.observeLookup(ctx, scope, "miss", start)
	return nil, false
}

// observeLookup records one lookup when instrumentation is enabled. Wall
// time is measured with the real clock even when a test clock is injected.
func (c *Cache) observeLookup(ctx context.Context, scope cachestore.Scope, result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCacheLookup(ctx, string(scope), result, time.Since(start).Seconds())
}

// fuzzyLookup compares the normalized query against a bounded sample of
// recent global entries. A candidate matches when its word-set Jaccard
// similarity exceeds the threshold and the Jaro-Winkler score over the full
// strings confirms it, which filters out same-words-different-question pairs.
func (c *Cache) fuzzyLookup(ctx context.Context, normalized string, now time.Time) *Hit {
	candidates, err := c.store.RecentGlobal(ctx, fuzzySampleLimit)
	if err != nil {
		c.log.Debug("fuzzy sample fetch failed", "error", err)
		return nil
	}

	queryWords := wordSet(normalized)
	if len(queryWords) == 0 {
		return nil
	}

	var best *cachestore.Entry
	var bestScore float64
	for i := range candidates {
		cand := &candidates[i]
		if cand.Expired(now) {
			continue
		}
		score := jaccard(queryWords, wordSet(cand.NormalizedQuery))
		if score <= jaccardThreshold || score <= bestScore {
			continue
		}
		if matchr.JaroWinkler(normalized, cand.NormalizedQuery, true) < jaroWinklerThreshold {
			continue
		}
		best = cand
		bestScore = score
	}
	if best == nil {
		return nil
	}

	if err := c.store.Touch(ctx, best.Hash, now); err != nil {
		c.log.Debug("cache touch failed", "error", err)
	}
	return &Hit{
		Response:   best.Response,
		Scope:      best.Scope,
		Fuzzy:      true,
		Similarity: bestScore,
		HitCount:   best.HitCount + 1,
	}
}

// WriteRequest carries a response to cache with its identity context and
// optional provenance (which model produced it, at what cost).
type WriteRequest struct {
	Query        string
	Response     string
	UserID       string
	SessionID    string
	Subject      string
	SkillLevel   string
	Personalized bool

	Model          string
	TokenCount     int
	ResponseLength string
	Complexity     string
}

// Write stores a response under the scope and TTL tier chosen for the query.
// Returns ErrNotCacheable when the query is too short or the response too
// long to be worth keeping.
func (c *Cache) Write(ctx context.Context, req WriteRequest) error {
	normalized := Normalize(req.Query)
	if len(normalized) < minQueryLength {
		c.rejected.Add(1)
		return fmt.Errorf("%w: query too short", ErrNotCacheable)
	}
	if req.Response == "" || len(req.Response) > maxResponseLength {
		c.rejected.Add(1)
		return fmt.Errorf("%w: response length %d outside cacheable range", ErrNotCacheable, len(req.Response))
	}

	scope := ChooseScope(normalized, req.UserID, req.Personalized)
	content := ClassifyContent(normalized, req.Personalized)
	ttl := c.ttlFor(content, scope)
	now := c.now()

	entry := cachestore.Entry{
		ID:              uuid.NewString(),
		Hash:            Key(scope, req.UserID, req.SessionID, normalized),
		NormalizedQuery: normalized,
		Response:        req.Response,
		Scope:           scope,
		Subject:         req.Subject,
		SkillLevel:      req.SkillLevel,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		LastAccessedAt:  now,
		Metadata: cachestore.Metadata{
			OriginalQuery:  req.Query,
			Model:          req.Model,
			TokenCount:     req.TokenCount,
			ResponseLength: req.ResponseLength,
			Complexity:     req.Complexity,
			ContentType:    string(content),
		},
	}
	if scope == cachestore.ScopeUser {
		entry.UserID = req.UserID
	}
	if scope == cachestore.ScopeSession {
		entry.SessionID = req.SessionID
	}

	if err := c.store.Put(ctx, &entry); err != nil {
		return fmt.Errorf("respcache: write: %w", err)
	}
	c.writes.Add(1)
	c.hot.put(entry.Hash, entry.Hash, entry.Response, entry.ExpiresAt)
	return nil
}

// ttlFor maps content type to a TTL tier, capping user and session scoped
// entries at the personalized tier.
func (c *Cache) ttlFor(content ContentType, scope cachestore.Scope) time.Duration {
	var ttl time.Duration
	switch content {
	case ContentFactual:
		ttl = c.ttl.Factual
	case ContentConceptual:
		ttl = c.ttl.Conceptual
	case ContentProcedural:
		ttl = c.ttl.Procedural
	default:
		ttl = c.ttl.Personalized
	}
	if scope != cachestore.ScopeGlobal && ttl > c.ttl.Personalized {
		ttl = c.ttl.Personalized
	}
	return ttl
}

// Invalidate removes a single cached query for the given identity context.
func (c *Cache) Invalidate(ctx context.Context, req LookupRequest) error {
	normalized := Normalize(req.Query)
	scope := ChooseScope(normalized, req.UserID, req.Personalized)
	key := Key(scope, req.UserID, req.SessionID, normalized)
	c.hot.invalidate(key)
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("respcache: invalidate: %w", err)
	}
	return nil
}

// InvalidateUser removes all user-scoped entries for userID.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	c.hot.clear()
	if _, err := c.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("respcache: invalidate user: %w", err)
	}
	return nil
}

// InvalidateSession removes all session-scoped entries for sessionID.
func (c *Cache) InvalidateSession(ctx context.Context, sessionID string) error {
	c.hot.clear()
	if _, err := c.store.DeleteBySession(ctx, sessionID); err != nil {
		return fmt.Errorf("respcache: invalidate session: %w", err)
	}
	return nil
}

// CleanupExpired purges expired entries from the store and reports how many
// were removed.
func (c *Cache) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := c.store.PurgeExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("respcache: cleanup: %w", err)
	}
	return n, nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		FuzzyHits: c.fuzzyHits.Load(),
		Writes:    c.writes.Load(),
		Rejected:  c.rejected.Load(),
	}
}

// wordSet splits a normalized query into its unique words.
func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes intersection over union of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
