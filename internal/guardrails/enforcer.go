package guardrails

import (
	"sync"
	"time"
)

// usage is the per-session ledger.
type usage struct {
	tokensUsed    int
	fallbackCalls int
	memories      int
	lastSeen      time.Time
}

// Enforcer applies a Policy to per-session usage ledgers. Safe for
// concurrent use across sessions.
type Enforcer struct {
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*usage
	limiter  *rateLimiter
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEnforcer creates an Enforcer for policy.
func NewEnforcer(policy Policy, opts ...Option) *Enforcer {
	e := &Enforcer{
		policy:   policy,
		now:      time.Now,
		sessions: make(map[string]*usage),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.limiter = newRateLimiter(policy.RequestsPerMinute, time.Minute, e.now)
	return e
}

// Policy returns the policy this enforcer applies.
func (e *Enforcer) Policy() Policy { return e.policy }

// session returns the ledger for sessionID, creating it on first use.
// Caller must hold e.mu.
func (e *Enforcer) session(sessionID string) *usage {
	u, ok := e.sessions[sessionID]
	if !ok {
		u = &usage{}
		e.sessions[sessionID] = u
	}
	u.lastSeen = e.now()
	return u
}

// ClampTokens bounds a requested token budget to
// min(requested, remaining session budget, per-response cap). A session
// with an exhausted budget gets zero; callers treat zero as "answer in the
// shortest possible form", never as an error.
func (e *Enforcer) ClampTokens(sessionID string, requested int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.session(sessionID)
	allowed := requested
	if allowed > e.policy.MaxTokensPerResponse {
		allowed = e.policy.MaxTokensPerResponse
	}
	remaining := e.policy.MaxTokensPerSession - u.tokensUsed
	if remaining < 0 {
		remaining = 0
	}
	if allowed > remaining {
		allowed = remaining
	}
	if allowed < 0 {
		allowed = 0
	}
	return allowed
}

// RecordTokens charges n tokens against the session budget.
func (e *Enforcer) RecordTokens(sessionID string, n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session(sessionID).tokensUsed += n
}

// TokensRemaining reports the unspent session budget.
func (e *Enforcer) TokensRemaining(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.policy.MaxTokensPerSession - e.session(sessionID).tokensUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanFallback reports whether the session has fallback allowance left,
// without charging it. Use AllowFallback to charge after a call was made.
func (e *Enforcer) CanFallback(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session(sessionID).fallbackCalls < e.policy.MaxFallbackCallsPerSession
}

// AllowFallback reports whether the session may spend another LLM fallback
// call, charging the allowance when it does.
func (e *Enforcer) AllowFallback(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.session(sessionID)
	if u.fallbackCalls >= e.policy.MaxFallbackCallsPerSession {
		return false
	}
	u.fallbackCalls++
	return true
}

// AllowRequest applies the per-session rate limit.
func (e *Enforcer) AllowRequest(sessionID string) bool {
	return e.limiter.allow(sessionID)
}

// AllowMemory reports whether the session may track another extracted
// memory, charging the allowance when it does.
func (e *Enforcer) AllowMemory(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.session(sessionID)
	if u.memories >= e.policy.MaxMemoriesPerSession {
		return false
	}
	u.memories++
	return true
}

// ShouldExtractMemory reports whether the memory-extraction cadence fires
// for the given message count.
func (e *Enforcer) ShouldExtractMemory(messageCount int) bool {
	if messageCount <= 0 {
		return false
	}
	return messageCount%e.policy.MemoryExtractionInterval == 0
}

// HistoryWindow trims history to the policy's context window, keeping the
// most recent messages.
func HistoryWindow[T any](policy Policy, history []T) []T {
	if len(history) <= policy.MaxHistoryWindow {
		return history
	}
	return history[len(history)-policy.MaxHistoryWindow:]
}

// FallbackTimeout returns the configured hard timeout for fallback calls.
func (e *Enforcer) FallbackTimeout() time.Duration {
	return e.policy.FallbackTimeout
}

// ActiveSessions returns the number of sessions with a live ledger.
func (e *Enforcer) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Sweep drops ledgers idle since before cutoff and stale rate-limit
// windows. Returns the number of session ledgers removed.
func (e *Enforcer) Sweep(cutoff time.Time) int {
	e.mu.Lock()
	removed := 0
	for id, u := range e.sessions {
		if u.lastSeen.Before(cutoff) {
			delete(e.sessions, id)
			removed++
		}
	}
	e.mu.Unlock()

	e.limiter.sweep(cutoff)
	return removed
}
