package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lessonloop/tutorcore/internal/normalize"
	"github.com/lessonloop/tutorcore/pkg/provider/llm"
)

// defaultFallbackTimeout bounds the single LLM fallback call. The classifier
// must return within this window even when the provider hangs.
const defaultFallbackTimeout = 2 * time.Second

// fallbackSystemPrompt instructs the model to emit exactly one label.
const fallbackSystemPrompt = `You classify messages sent by a student to a tutoring assistant.
Reply with exactly one of these labels and nothing else:
EXPLAIN, DEFINE, SOLVE, EXAMPLE, COMPARE, SUMMARIZE, QUIZ_ME, FLASHCARDS,
GENERATE_IMAGE, PRACTICE, HINT, CHECK_WORK, FOLLOW_UP, GREETING, FAREWELL,
CONFUSED, CASUAL_CHAT, UNCLEAR`

// Options controls a single classification call.
type Options struct {
	// AllowFallback permits the LLM fallback call when the fast path resolves
	// at low confidence or not at all. Guardrails gate this per session.
	AllowFallback bool

	// RecentContext holds the last few user messages, oldest first, given to
	// the fallback call for disambiguation. Ignored by the fast path.
	RecentContext []string
}

// Classifier resolves user messages to intents. Construct with [NewClassifier];
// the zero value is not usable.
//
// Safe for concurrent use.
type Classifier struct {
	provider        llm.Provider
	fallbackTimeout time.Duration
	memo            *memoCache
	now             func() time.Time
}

// ClassifierOption is a functional option for [NewClassifier].
type ClassifierOption func(*classifierConfig)

type classifierConfig struct {
	provider        llm.Provider
	fallbackTimeout time.Duration
	memoTTL         time.Duration
	memoCapacity    int
	now             func() time.Time
}

// WithProvider supplies the LLM used for the fallback path. Without a
// provider the classifier is fast-path only.
func WithProvider(p llm.Provider) ClassifierOption {
	return func(c *classifierConfig) { c.provider = p }
}

// WithFallbackTimeout overrides the default 2s hard timeout on the fallback call.
func WithFallbackTimeout(d time.Duration) ClassifierOption {
	return func(c *classifierConfig) { c.fallbackTimeout = d }
}

// WithMemoTTL overrides the default 60s memoization TTL.
func WithMemoTTL(d time.Duration) ClassifierOption {
	return func(c *classifierConfig) { c.memoTTL = d }
}

// WithClock injects the clock used for memo expiry. Tests use this to advance
// time deterministically.
func WithClock(now func() time.Time) ClassifierOption {
	return func(c *classifierConfig) { c.now = now }
}

// NewClassifier creates a Classifier with the given options applied over the
// defaults.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	cfg := &classifierConfig{
		fallbackTimeout: defaultFallbackTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Classifier{
		provider:        cfg.provider,
		fallbackTimeout: cfg.fallbackTimeout,
		memo:            newMemoCache(cfg.memoTTL, cfg.memoCapacity, cfg.now),
		now:             cfg.now,
	}
}

// Classify resolves text to an intent. It never fails: fallback timeouts and
// provider errors degrade to the best fast-path guess or IntentUnclear, and
// the result is always memoized.
func (c *Classifier) Classify(ctx context.Context, text string, opts Options) Result {
	key := memoKey(text)
	if r, ok := c.memo.get(key); ok {
		r.Memoized = true
		return r
	}

	processed := normalize.Process(text)
	result, resolved := c.fastPath(&processed)

	if (!resolved || result.Confidence == ConfidenceLow) && opts.AllowFallback && c.provider != nil {
		if fb, ok := c.fallback(ctx, text, opts.RecentContext); ok {
			fb.Slots = extractSlots(&processed)
			result = fb
			resolved = true
		}
	}

	if !resolved {
		result = Result{
			Intent:     IntentUnclear,
			Confidence: ConfidenceLow,
			Slots:      extractSlots(&processed),
		}
	}

	c.memo.put(key, result)
	return result
}

// fastPath runs the signal sets, the ordered rules, and the heuristic
// fallbacks, in that order. The boolean reports whether any tier resolved.
func (c *Classifier) fastPath(p *normalize.ProcessedInput) (Result, bool) {
	lower := strings.ToLower(p.Cleaned)
	slots := extractSlots(p)

	// Tier 1: state signals short-circuit everything else.
	switch {
	case containsAny(lower, confusionSignals):
		return Result{Intent: IntentConfused, Confidence: ConfidenceHigh, Slots: slots}, true
	case containsAny(lower, completionSignals), containsAny(lower, disengagementSignals):
		return Result{Intent: IntentCasualChat, Confidence: ConfidenceHigh, Slots: slots}, true
	}

	// Tier 2: ordered rule table, first match wins.
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			return Result{Intent: r.intent, Confidence: ConfidenceHigh, Slots: slots}, true
		}
	}

	// Tier 3: heuristic fallbacks, in documented order.
	if strings.HasSuffix(strings.TrimSpace(p.Cleaned), "?") {
		in := IntentExplain
		if p.WordCount <= 5 {
			in = IntentFollowUp
		}
		return Result{Intent: in, Confidence: ConfidenceMedium, Slots: slots}, true
	}
	if p.HasMath() {
		return Result{Intent: IntentSolve, Confidence: ConfidenceMedium, Slots: slots}, true
	}
	if p.WordCount > 0 && p.WordCount <= 3 {
		return Result{Intent: IntentFollowUp, Confidence: ConfidenceLow, Slots: slots}, true
	}

	return Result{}, false
}

// fallback issues the single bounded LLM call and parses the label
// leniently. The boolean is false when the call failed or timed out, in
// which case the caller keeps its fast-path guess.
func (c *Classifier) fallback(ctx context.Context, text string, recent []string) (Result, bool) {
	fbCtx, cancel := context.WithTimeout(ctx, c.fallbackTimeout)
	defer cancel()

	var messages []llm.Message
	for _, m := range recent {
		messages = append(messages, llm.Message{Role: "user", Content: m})
	}
	messages = append(messages, llm.Message{Role: "user", Content: text})

	resp, err := c.provider.Complete(fbCtx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: fallbackSystemPrompt,
		Temperature:  0,
		MaxTokens:    8,
	})
	if err != nil {
		slog.Debug("intent fallback degraded to fast path", "error", err)
		return Result{}, false
	}

	in, conf := parseLabel(resp.Content)
	return Result{Intent: in, Confidence: conf, UsedFallback: true}, true
}

// parseLabel resolves the model's reply to an intent: exact match first, then
// substring containment against the valid-label set, then IntentUnclear.
func parseLabel(reply string) (Intent, Confidence) {
	cleaned := strings.ToLower(strings.TrimSpace(reply))
	cleaned = strings.Trim(cleaned, `"'.!`)

	if in := Intent(cleaned); in.IsValid() {
		return in, ConfidenceHigh
	}
	for _, in := range All {
		if strings.Contains(cleaned, string(in)) {
			return in, ConfidenceMedium
		}
	}
	return IntentUnclear, ConfidenceLow
}

// extractSlots lifts the first extracted topic/question/math fragment into slots.
func extractSlots(p *normalize.ProcessedInput) Slots {
	var s Slots
	if len(p.Topics) > 0 {
		s.Topic = p.Topics[0]
	}
	if len(p.Questions) > 0 {
		s.Question = p.Questions[0]
	}
	if len(p.MathExpressions) > 0 {
		s.MathExpression = p.MathExpressions[0]
	}
	return s
}
