// Package complexity scores freeform queries into simple/moderate/complex and
// derives a response-length and model-tier recommendation.
//
// The fast path is pure pattern scoring: three pattern families plus subject
// lookup tables plus word/sentence-count heuristics. When the score margin is
// too thin to trust and an LLM provider is available, a single structured
// fallback call refines the classification.
package complexity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lessonloop/tutorcore/internal/normalize"
	"github.com/lessonloop/tutorcore/pkg/provider/llm"
)

// Class is the complexity bucket of a query.
type Class string

const (
	Simple   Class = "simple"
	Moderate Class = "moderate"
	Complex  Class = "complex"
)

// IsValid reports whether c is a recognised complexity class.
func (c Class) IsValid() bool {
	return c == Simple || c == Moderate || c == Complex
}

// ResponseLength is the recommended answer length class.
type ResponseLength string

const (
	LengthShort    ResponseLength = "short"
	LengthMedium   ResponseLength = "medium"
	LengthDetailed ResponseLength = "detailed"
)

// Tier is the qualitative model capability bucket a query is routed to.
type Tier string

const (
	// TierFast is the cheap, low-latency model tier.
	TierFast Tier = "fast"

	// TierAdvanced is the expensive, high-capability model tier.
	TierAdvanced Tier = "advanced"
)

// Analysis is the ephemeral result of analysing one query.
type Analysis struct {
	// Class is the resolved complexity bucket.
	Class Class

	// Length is the recommended response length.
	Length ResponseLength

	// Tier is the recommended model tier.
	Tier Tier

	// Confidence is in [0, 1], proportional to the score margin between the
	// winning bucket and the runner-up. A refined analysis carries the fixed
	// post-refinement confidence.
	Confidence float64

	// RequiresReasoning marks queries needing multi-step reasoning.
	RequiresReasoning bool

	// RequiresCalculation marks queries needing numeric work.
	RequiresCalculation bool

	// RequiresCode marks queries needing code generation.
	RequiresCode bool

	// MaxTokens is the derived completion token budget.
	MaxTokens int

	// Temperature is the derived sampling temperature.
	Temperature float64

	// Refined reports whether the LLM fallback call contributed.
	Refined bool
}

// defaultConfidenceThreshold is the margin confidence below which the LLM
// refinement is attempted.
const defaultConfidenceThreshold = 0.6

// refinedConfidence is the fixed confidence assigned after a successful
// LLM refinement.
const refinedConfidence = 0.85

// refineSystemPrompt asks for a strict one-line JSON classification.
const refineSystemPrompt = `You rate the complexity of a student's question for a tutoring system.
Reply with one line of JSON, nothing else:
{"complexity":"simple|moderate|complex","reasoning":bool,"calculation":bool,"code":bool}`

// Analyzer scores queries. Construct with [NewAnalyzer]; the zero value is
// fast-path only with the default threshold.
//
// Safe for concurrent use.
type Analyzer struct {
	provider  llm.Provider
	threshold float64
}

// AnalyzerOption is a functional option for [NewAnalyzer].
type AnalyzerOption func(*Analyzer)

// WithProvider supplies the LLM used for low-confidence refinement.
func WithProvider(p llm.Provider) AnalyzerOption {
	return func(a *Analyzer) { a.provider = p }
}

// WithConfidenceThreshold overrides the default 0.6 refinement threshold.
func WithConfidenceThreshold(t float64) AnalyzerOption {
	return func(a *Analyzer) { a.threshold = t }
}

// NewAnalyzer creates an Analyzer with the given options applied over the
// defaults.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{threshold: defaultConfidenceThreshold}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze classifies query and derives the response recommendation. It never
// fails: refinement errors degrade to the fast-path scores.
func (a *Analyzer) Analyze(ctx context.Context, query string) Analysis {
	p := normalize.Process(query)
	analysis := a.score(&p)

	if analysis.Confidence < a.threshold && a.provider != nil {
		if refined, ok := a.refine(ctx, query); ok {
			analysis.Class = refined.Class
			analysis.RequiresReasoning = refined.RequiresReasoning
			analysis.RequiresCalculation = refined.RequiresCalculation
			analysis.RequiresCode = refined.RequiresCode
			analysis.Confidence = refinedConfidence
			analysis.Refined = true
		}
	}

	deriveResponseConfig(&analysis)
	return analysis
}

// score runs the pattern families, subject tables, and size heuristics and
// picks the dominant bucket with margin-proportional confidence.
func (a *Analyzer) score(p *normalize.ProcessedInput) Analysis {
	lower := strings.ToLower(p.Cleaned)

	var simple, moderate, complexScore float64
	simple += countMatches(lower, simplePatterns)
	moderate += countMatches(lower, moderatePatterns)
	complexScore += countMatches(lower, complexPatterns)

	// Subject lookup tables.
	complexScore += countMatches(lower, complexSubjects)
	simple += countMatches(lower, simpleSubjects)

	// Size heuristics: terse queries skew simple, sprawling ones complex.
	switch {
	case p.WordCount > 0 && p.WordCount < 8:
		simple++
	case p.WordCount > 40:
		complexScore++
	}
	if strings.Count(p.Cleaned, "?") > 1 || len(p.Questions) > 1 {
		complexScore++ // multi-part question
	}
	if sentences := countSentences(p.Cleaned); sentences > 2 {
		complexScore++
	}
	if p.HasCode() {
		complexScore++
	}

	analysis := Analysis{
		RequiresCalculation: p.HasMath(),
		RequiresCode:        p.HasCode(),
	}

	total := simple + moderate + complexScore
	if total == 0 {
		// Nothing matched at all: assume moderate with no confidence, which
		// hands the decision to the refinement call when one is available.
		analysis.Class = Moderate
		analysis.Confidence = 0
		return analysis
	}

	winner, margin := dominant(simple, moderate, complexScore)
	analysis.Class = winner
	analysis.Confidence = margin / total
	if winner == Complex {
		analysis.RequiresReasoning = true
	}
	return analysis
}

// refine issues the single structured LLM call. The boolean is false when the
// call failed or the reply was unusable.
func (a *Analyzer) refine(ctx context.Context, query string) (Analysis, bool) {
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: query}},
		SystemPrompt: refineSystemPrompt,
		Temperature:  0,
		MaxTokens:    48,
	})
	if err != nil {
		slog.Debug("complexity refinement degraded to fast path", "error", err)
		return Analysis{}, false
	}

	var parsed struct {
		Complexity  string `json:"complexity"`
		Reasoning   bool   `json:"reasoning"`
		Calculation bool   `json:"calculation"`
		Code        bool   `json:"code"`
	}
	body := extractJSONObject(resp.Content)
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		slog.Debug("complexity refinement reply unparseable", "error", err)
		return Analysis{}, false
	}

	class := Class(strings.ToLower(parsed.Complexity))
	if !class.IsValid() {
		return Analysis{}, false
	}
	return Analysis{
		Class:               class,
		RequiresReasoning:   parsed.Reasoning,
		RequiresCalculation: parsed.Calculation,
		RequiresCode:        parsed.Code,
	}, true
}

// deriveResponseConfig maps the complexity class deterministically onto
// length, tier, token budget, and temperature.
func deriveResponseConfig(a *Analysis) {
	switch a.Class {
	case Simple:
		a.Length = LengthShort
		a.Tier = TierFast
		a.MaxTokens = 150
		a.Temperature = 0.3
	case Complex:
		a.Length = LengthDetailed
		a.Tier = TierAdvanced
		a.MaxTokens = 800
		a.Temperature = 0.7
	default: // Moderate
		a.Length = LengthMedium
		a.MaxTokens = 400
		a.Temperature = 0.5
		if a.RequiresReasoning || a.RequiresCalculation || a.RequiresCode {
			a.Tier = TierAdvanced
		} else {
			a.Tier = TierFast
		}
	}
}

// dominant returns the winning bucket and its margin over the runner-up.
// Ties break toward the cheaper bucket (simple < moderate < complex): when
// the evidence is balanced, the cost-conscious choice wins.
func dominant(simple, moderate, complexScore float64) (Class, float64) {
	winner, best := Simple, simple
	if moderate > best {
		winner, best = Moderate, moderate
	}
	if complexScore > best {
		winner, best = Complex, complexScore
	}

	runnerUp := 0.0
	for class, score := range map[Class]float64{Simple: simple, Moderate: moderate, Complex: complexScore} {
		if class != winner && score > runnerUp {
			runnerUp = score
		}
	}
	return winner, best - runnerUp
}

func countMatches(lower string, phrases []string) float64 {
	var n float64
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}

func countSentences(s string) int {
	n := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			n++
		}
	}
	return n
}

// extractJSONObject pulls the first {...} span out of a possibly chatty reply.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
