package intent

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// defaultMemoTTL is how long a classification stays memoized. The memo only
// absorbs rapid repeats of the same message; it is not a response cache.
const defaultMemoTTL = 60 * time.Second

// defaultMemoCapacity bounds the memo map. At capacity the entry closest to
// expiry is evicted.
const defaultMemoCapacity = 512

// memoEntry pairs a cached result with its expiry instant.
type memoEntry struct {
	result    Result
	expiresAt time.Time
}

// memoCache is a bounded, TTL-limited memoization map for classification
// results. It is an optimization, never a source of truth; a stale or missing
// entry simply re-runs classification.
//
// Safe for concurrent use.
type memoCache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]memoEntry
}

func newMemoCache(ttl time.Duration, capacity int, now func() time.Time) *memoCache {
	if ttl <= 0 {
		ttl = defaultMemoTTL
	}
	if capacity <= 0 {
		capacity = defaultMemoCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &memoCache{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		entries:  make(map[string]memoEntry),
	}
}

// get returns the memoized result for key if present and unexpired.
// An entry past its TTL is never returned, even if eviction has not yet
// removed it.
func (c *memoCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

// put memoizes result under key for the configured TTL, evicting expired
// entries first and then the soonest-expiring entry if still at capacity.
func (c *memoCache) put(key string, result Result) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) >= c.capacity {
		var oldestKey string
		var oldestExpiry time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldestExpiry) {
				oldestKey = k
				oldestExpiry = e.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = memoEntry{result: result, expiresAt: now.Add(c.ttl)}
}

// memoKey derives the memoization key: a truncated SHA-256 of the lowercased,
// whitespace-normalized text. Truncation keeps keys compact; 16 hex chars is
// plenty for a map bounded in the hundreds.
func memoKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
