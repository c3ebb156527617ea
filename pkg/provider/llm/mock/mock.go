// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the classifier and analyzer send
// correct CompletionRequests and to feed controlled responses without a live
// LLM backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "EXPLAIN"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/lessonloop/tutorcore/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteResponse is returned from Complete when CompleteErr is nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteDelay, if positive, makes Complete block for the given duration
	// (or until ctx is done). Used to exercise fallback-timeout paths.
	CompleteDelay time.Duration

	// CountTokensResult is returned from CountTokens.
	CountTokensResult int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// CapabilitiesResult is returned from Capabilities.
	CapabilitiesResult llm.ModelCapabilities

	// --- Recorded calls ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider. It records the call and returns the
// configured response or error, honouring CompleteDelay and ctx cancellation.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	delay := p.CompleteDelay
	resp := p.CompleteResponse
	err := p.CompleteErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	return resp, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	if p.CountTokensErr != nil {
		return 0, p.CountTokensErr
	}
	return p.CountTokensResult, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.CapabilitiesResult
}

// CallCount returns the number of Complete invocations recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
