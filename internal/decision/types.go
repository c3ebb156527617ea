// Package decision orchestrates normalization, intent classification,
// adaptive state, complexity analysis, caching, response configuration and
// guardrails into a single actionable decision per user message.
package decision

import (
	"errors"
	"time"

	"github.com/lessonloop/tutorcore/internal/adaptive"
	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/respconfig"
	"github.com/lessonloop/tutorcore/internal/router"
)

// ErrNoSession is returned when a decision is requested without session
// context. This is a caller bug, not a degradable condition.
var ErrNoSession = errors.New("decision: session context required")

// Action is what the caller should do with the user's message.
type Action string

const (
	// ActionRespond generates a freeform reply with the decision's config.
	ActionRespond Action = "respond"

	// ActionUseCache returns the cached response verbatim; no LLM call.
	ActionUseCache Action = "use_cache"

	// ActionGenerateImage hands off to the image pipeline.
	ActionGenerateImage Action = "generate_image"

	// ActionCreateFlashcards hands off to the flashcard builder.
	ActionCreateFlashcards Action = "create_flashcards"

	// ActionCreateQuiz generates a structured quiz with the decision's config.
	ActionCreateQuiz Action = "create_quiz"
)

// SessionContext identifies the session a decision runs under.
type SessionContext struct {
	SessionID string
	UserID    string

	// Subject is the declared session subject, if any.
	Subject string

	// SkillLevel is the user's declared skill ("beginner", "expert", ...).
	SkillLevel string

	// StartedAt is when the session began; drives phase derivation.
	StartedAt time.Time

	// RecentMessages holds prior user messages, oldest first. Trimmed to
	// the guardrail history window before use.
	RecentMessages []string
}

// PostActions are follow-ups the caller runs after the response is sent.
type PostActions struct {
	// UpdateSignals is always set: the adaptive tracker must process the
	// user message after the turn completes.
	UpdateSignals bool

	// ExtractMemory fires on the configured message cadence.
	ExtractMemory bool

	// OfferVisual suggests proposing a diagram, gated by topic depth.
	OfferVisual bool

	// CheckProgress suggests a quick progress check-in.
	CheckProgress bool
}

// Metadata describes how the decision was reached.
type Metadata struct {
	Intent       intent.Intent
	Confidence   intent.Confidence
	UsedFallback bool
	Phase        adaptive.SessionPhase
	CacheHit     bool
	Latency      time.Duration
}

// AIDecision is the controller's output for one user message.
type AIDecision struct {
	Action Action

	// Config shapes the generated reply. Zero value for short-circuit
	// actions (image, flashcards, cache hits).
	Config respconfig.Config

	// Route selects the model for freeform generation. Zero value when no
	// generation call will be made.
	Route router.Decision

	// CachedResponse carries the reusable answer for ActionUseCache.
	CachedResponse string

	// PromptHints are natural-language directives appended to the
	// generation prompt.
	PromptHints []string

	PostActions PostActions
	Metadata    Metadata
}
