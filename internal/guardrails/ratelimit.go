package guardrails

import (
	"sync"
	"time"
)

// window is one fixed rate-limit window for a key.
type window struct {
	start time.Time
	count int
}

// rateLimiter is a fixed-window counter per key. It is a process-local
// optimization with no cross-process coherence; the authoritative budgets
// live in the session ledgers.
type rateLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newRateLimiter(limit int, period time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		period:  period,
		now:     now,
		windows: make(map[string]*window),
	}
}

// allow reports whether key has allowance left in the current window,
// charging one unit when it does. A zero limit disables limiting.
func (r *rateLimiter) allow(key string) bool {
	if r.limit <= 0 {
		return true
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.period {
		r.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= r.limit {
		return false
	}
	w.count++
	return true
}

// sweep evicts windows that started before cutoff.
func (r *rateLimiter) sweep(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, w := range r.windows {
		if w.start.Before(cutoff) {
			delete(r.windows, key)
		}
	}
}
