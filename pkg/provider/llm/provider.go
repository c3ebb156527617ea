// Package llm defines the Provider interface for Large Language Model backends.
//
// The tutorcore decision layer never calls an LLM for primary response
// generation; that belongs to the hosting product. A Provider is consulted in
// exactly two bounded places, the intent-classification fallback and the
// query-complexity refinement, both of which send a single short completion
// request and parse the reply leniently.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled, Complete must return as
// quickly as possible.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt. This value feeds the per-session token ledger.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a convenience;
	// some providers return it directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs. Classification calls should
	// use 0 for near-deterministic label output.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default (usually the model's MaxOutputTokens).
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history. If the provider does not natively support a
	// dedicated system prompt, implementors should prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModerationResult is the outcome of a content-safety check.
type ModerationResult struct {
	// Flagged reports whether the input violates the provider's content policy.
	Flagged bool

	// Categories lists the policy categories that flagged, if any.
	Categories []string
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens the given message list would
	// consume in the model's context window. Used to enforce session token
	// budgets before sending a request. The result need not be exact but
	// should not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports. The result is assumed to be constant for the
	// lifetime of the Provider instance.
	Capabilities() ModelCapabilities
}

// Moderator is an optional extension for providers that expose a content
// moderation endpoint. The decision core itself never calls Moderate; it is
// offered to the hosting product as part of the provider surface.
type Moderator interface {
	// Moderate runs a content-safety check over text.
	Moderate(ctx context.Context, text string) (*ModerationResult, error)
}
