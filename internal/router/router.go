// Package router maps a query complexity analysis onto a concrete routing
// decision: which model to call, with what token budget, temperature, and
// length-control instruction.
//
// Routing is a pure mapping with override hooks; it performs no I/O.
package router

import (
	"strings"

	"github.com/lessonloop/tutorcore/internal/complexity"
)

// Decision is the concrete routing outcome for one query.
type Decision struct {
	// Model is the provider-specific model identifier to call.
	Model string

	// Tier is the capability tier Model belongs to.
	Tier complexity.Tier

	// MaxTokens is the completion token budget.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64

	// LengthInstruction is the natural-language length directive injected
	// into the generation prompt.
	LengthInstruction string

	// CostEstimate is a qualitative cost bucket ("low", "high").
	CostEstimate string

	// LatencyEstimate is a qualitative latency bucket ("low", "high").
	LatencyEstimate string
}

// Overrides let the caller pin parts of the decision. Zero values mean
// "no override".
type Overrides struct {
	// Model forces a specific model identifier.
	Model string

	// Length forces a response length class.
	Length complexity.ResponseLength

	// TokenCap clamps MaxTokens from above.
	TokenCap int
}

// Router holds the model identifiers for each tier.
// The zero value is not usable; construct with [New].
type Router struct {
	fastModel     string
	advancedModel string
}

// New creates a Router routing TierFast to fastModel and TierAdvanced to
// advancedModel.
func New(fastModel, advancedModel string) *Router {
	return &Router{fastModel: fastModel, advancedModel: advancedModel}
}

// Route maps an analysis to a concrete decision, applying overrides last.
func (r *Router) Route(a complexity.Analysis, ov Overrides) Decision {
	d := Decision{
		Tier:        a.Tier,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	}

	switch a.Tier {
	case complexity.TierAdvanced:
		d.Model = r.advancedModel
		d.CostEstimate = "high"
		d.LatencyEstimate = "high"
	default:
		d.Model = r.fastModel
		d.CostEstimate = "low"
		d.LatencyEstimate = "low"
	}

	length := a.Length
	if ov.Length != "" {
		length = ov.Length
	}
	d.LengthInstruction = lengthInstruction(length)

	if ov.Model != "" {
		d.Model = ov.Model
	}
	if ov.TokenCap > 0 && d.MaxTokens > ov.TokenCap {
		d.MaxTokens = ov.TokenCap
	}
	return d
}

// ShouldUpgrade advises raising a moderate analysis to the advanced tier:
// either the caller explicitly requested detail, or an expert-level user is
// asking about a subject from the complex list, where surface-level answers
// waste the question.
func ShouldUpgrade(a complexity.Analysis, detailRequested bool, userSkill, subject string) bool {
	if a.Tier == complexity.TierAdvanced {
		return false
	}
	if detailRequested {
		return true
	}
	if a.Class == complexity.Moderate && strings.EqualFold(userSkill, "expert") && isComplexSubject(subject) {
		return true
	}
	return false
}

// ShouldDowngrade advises dropping to the fast tier: a cache hit needs no
// model capability at all, and a moderate-complexity follow-up rides on
// context already established.
func ShouldDowngrade(a complexity.Analysis, cacheHit, isFollowUp bool) bool {
	if cacheHit {
		return true
	}
	return a.Class == complexity.Moderate && isFollowUp
}

// Upgrade returns a copy of the analysis promoted to the advanced tier.
func Upgrade(a complexity.Analysis) complexity.Analysis {
	a.Tier = complexity.TierAdvanced
	return a
}

// Downgrade returns a copy of the analysis demoted to the fast tier.
func Downgrade(a complexity.Analysis) complexity.Analysis {
	a.Tier = complexity.TierFast
	return a
}

// lengthInstruction renders the length class as a prompt directive.
func lengthInstruction(l complexity.ResponseLength) string {
	switch l {
	case complexity.LengthShort:
		return "Answer in 1-3 concise sentences."
	case complexity.LengthDetailed:
		return "Give a thorough, well-structured answer with headings or steps where useful."
	default:
		return "Answer in one focused paragraph."
	}
}

// isComplexSubject checks subject against the complex-subject table.
func isComplexSubject(subject string) bool {
	lower := strings.ToLower(subject)
	for _, s := range complexSubjectList() {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// complexSubjectList re-exports the analyzer's subject table so the upgrade
// advisory and the scorer never disagree about what counts as complex.
func complexSubjectList() []string {
	return complexity.ComplexSubjects()
}
