// Package guardrails enforces per-session resource ceilings: token budgets,
// fallback-call allowances and request rate. Budget pressure is never an
// error; configurations are silently clamped so a turn completes at reduced
// quality instead of failing.
package guardrails

import (
	"fmt"
	"time"
)

// Policy is the process-wide guardrail configuration. It is policy, not
// per-session data: one Policy instance governs every session ledger.
type Policy struct {
	// MaxFallbackCallsPerSession bounds LLM fallback classifications per
	// session. Zero disables the fallback entirely.
	MaxFallbackCallsPerSession int

	// FallbackTimeout is the hard timeout for a single fallback call.
	FallbackTimeout time.Duration

	// MaxTokensPerResponse caps any single response's token budget.
	MaxTokensPerResponse int

	// MaxTokensPerSession is the total token budget across a session.
	MaxTokensPerSession int

	// MemoryExtractionInterval is the message cadence for running memory
	// extraction after a response.
	MemoryExtractionInterval int

	// MaxMemoriesPerSession bounds memories extracted in one session.
	MaxMemoriesPerSession int

	// MaxHistoryWindow is the number of prior messages included as context.
	MaxHistoryWindow int

	// RequestsPerMinute bounds decision requests per session per minute.
	// Zero disables rate limiting.
	RequestsPerMinute int
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxFallbackCallsPerSession: 10,
		FallbackTimeout:            2 * time.Second,
		MaxTokensPerResponse:       800,
		MaxTokensPerSession:        20000,
		MemoryExtractionInterval:   5,
		MaxMemoriesPerSession:      20,
		MaxHistoryWindow:           12,
		RequestsPerMinute:          30,
	}
}

// Validate reports the first invalid field.
func (p Policy) Validate() error {
	if p.MaxFallbackCallsPerSession < 0 {
		return fmt.Errorf("guardrails: max_fallback_calls_per_session must be >= 0, got %d", p.MaxFallbackCallsPerSession)
	}
	if p.FallbackTimeout <= 0 {
		return fmt.Errorf("guardrails: fallback_timeout must be positive, got %s", p.FallbackTimeout)
	}
	if p.MaxTokensPerResponse <= 0 {
		return fmt.Errorf("guardrails: max_tokens_per_response must be positive, got %d", p.MaxTokensPerResponse)
	}
	if p.MaxTokensPerSession < p.MaxTokensPerResponse {
		return fmt.Errorf("guardrails: max_tokens_per_session (%d) must be >= max_tokens_per_response (%d)",
			p.MaxTokensPerSession, p.MaxTokensPerResponse)
	}
	if p.MemoryExtractionInterval <= 0 {
		return fmt.Errorf("guardrails: memory_extraction_interval must be positive, got %d", p.MemoryExtractionInterval)
	}
	if p.MaxHistoryWindow <= 0 {
		return fmt.Errorf("guardrails: max_history_window must be positive, got %d", p.MaxHistoryWindow)
	}
	if p.RequestsPerMinute < 0 {
		return fmt.Errorf("guardrails: requests_per_minute must be >= 0, got %d", p.RequestsPerMinute)
	}
	return nil
}
