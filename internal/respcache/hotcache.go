package respcache

import (
	"sync"
	"time"
)

// hotEntry pairs a cached response with its expiry and insertion order.
type hotEntry struct {
	response string
	entry    string // hash of the backing store entry
	expires  time.Time
	inserted time.Time
}

// hotCache is a small fixed-capacity, short-TTL in-process cache in front of
// the persistent store, for the very hottest keys. It is an optimization
// only: every miss falls through to the authoritative store.
//
// Eviction at capacity removes the oldest-inserted key. Safe for concurrent use.
type hotCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]hotEntry
}

func newHotCache(capacity int, ttl time.Duration, now func() time.Time) *hotCache {
	if capacity <= 0 {
		capacity = 64
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &hotCache{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		entries:  make(map[string]hotEntry, capacity),
	}
}

// get returns the hot response for key if present and unexpired.
func (h *hotCache) get(key string) (hotEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[key]
	if !ok {
		return hotEntry{}, false
	}
	if !h.now().Before(e.expires) {
		delete(h.entries, key)
		return hotEntry{}, false
	}
	return e, true
}

// put stores response under key, evicting the oldest-inserted key at capacity.
// The hot TTL is capped by the backing entry's own expiry so the front cache
// can never outlive the authoritative record.
func (h *hotCache) put(key, hash, response string, storeExpiry time.Time) {
	now := h.now()
	expires := now.Add(h.ttl)
	if storeExpiry.Before(expires) {
		expires = storeExpiry
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.entries[key]; !exists && len(h.entries) >= h.capacity {
		var oldestKey string
		var oldestTime time.Time
		for k, e := range h.entries {
			if oldestKey == "" || e.inserted.Before(oldestTime) {
				oldestKey = k
				oldestTime = e.inserted
			}
		}
		delete(h.entries, oldestKey)
	}

	h.entries[key] = hotEntry{
		response: response,
		entry:    hash,
		expires:  expires,
		inserted: now,
	}
}

// invalidate drops key from the hot cache.
func (h *hotCache) invalidate(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, key)
}

// clear drops everything. Used after bulk invalidation against the store.
func (h *hotCache) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[string]hotEntry, h.capacity)
}

// len reports the current entry count.
func (h *hotCache) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
