package respconfig

import (
	"github.com/lessonloop/tutorcore/internal/adaptive"
	"github.com/lessonloop/tutorcore/internal/intent"
)

// Overlay is a pure refinement step: it takes a configuration and returns
// the adjusted one. Overlays never mutate shared state, which keeps each
// step testable in isolation and the composition order explicit.
type Overlay func(Config) Config

// Build folds the base configuration for in through the standard overlay
// sequence and finally applies explicit caller overrides.
func Build(in Input) Config {
	cfg := BaseFor(in.Intent)
	for _, o := range []Overlay{
		AdaptiveOverlay(in.State),
		MemoryOverlay(in.Memory),
		PhaseOverlay(in.Phase),
	} {
		cfg = o(cfg)
	}
	return applyOverrides(cfg, in.Overrides)
}

// Input gathers everything Build needs for one decision.
type Input struct {
	Intent    intent.Intent
	State     *adaptive.State
	Memory    MemorySnapshot
	Phase     adaptive.SessionPhase
	Overrides Overrides
}

// AdaptiveOverlay adjusts the configuration from live session behavior.
// Confusion escalates toward worked examples with a larger budget; sustained
// short replies clamp the reply down and ask a re-engagement question;
// confirmed understanding at high engagement suppresses forced questions.
// The over-asking guard wins over every question-enabling rule.
func AdaptiveOverlay(s *adaptive.State) Overlay {
	return func(cfg Config) Config {
		if s == nil {
			return cfg
		}

		if s.ConfusionCount >= 1 {
			cfg.Style = StyleExampleFirst
			cfg.Tone = TonePatient
			cfg.IncludeExample = true
			cfg.MaxTokens = raiseTokens(cfg.MaxTokens, 650)
		}

		if s.ShortReplyCount >= 3 {
			cfg.Length = LengthShort
			cfg.IncludeQuestion = true
			cfg.MaxTokens = capTokens(cfg.MaxTokens, 250)
		}

		if s.Engagement == adaptive.EngagementHigh && s.UnderstandingConfirmed {
			cfg.IncludeQuestion = false
		}

		switch s.PreferredLength {
		case adaptive.PreferShort:
			cfg.Length = shorterOf(cfg.Length, LengthShort)
		case adaptive.PreferMedium:
			cfg.Length = shorterOf(cfg.Length, LengthMedium)
		}

		// Over-asking guard: never pile more questions on an unanswered
		// backlog.
		if s.QuestionsAsked > s.QuestionsAnswered+2 {
			cfg.IncludeQuestion = false
		}

		return cfg
	}
}

// MemoryOverlay nudges the configuration from durable user preferences.
// Each preference adjusts one axis within bounds; unknown values are ignored.
func MemoryOverlay(m MemorySnapshot) Overlay {
	return func(cfg Config) Config {
		switch m.LearningStyle {
		case "visual":
			cfg.OfferVisual = true
		case "examples":
			cfg.IncludeExample = true
			if cfg.Style != StyleStepByStep {
				cfg.Style = StyleExampleFirst
			}
		case "analogies":
			cfg.Style = StyleAnalogy
		case "socratic":
			cfg.Style = StyleSocratic
			cfg.IncludeQuestion = true
		}

		switch m.Difficulty {
		case "beginner":
			cfg.Style = StyleStepByStep
			cfg.Tone = TonePatient
			cfg.MaxTokens = raiseTokens(cfg.MaxTokens, 600)
		case "advanced":
			if cfg.Tone == ToneNeutral {
				cfg.Tone = ToneDirect
			}
		}

		switch m.Pace {
		case "fast":
			cfg.Length = shorterOf(cfg.Length, LengthMedium)
			cfg.MaxTokens = capTokens(cfg.MaxTokens, 400)
		case "slow":
			cfg.Tone = TonePatient
		}

		switch m.CommunicationStyle {
		case "encouraging":
			cfg.Tone = ToneEncouraging
		case "direct":
			cfg.Tone = ToneDirect
		case "playful":
			cfg.Tone = TonePlayful
		}

		return cfg
	}
}

// PhaseOverlay applies session-lifecycle adjustments last among the standard
// overlays, so phase pressure wins direct conflicts with earlier nudges.
func PhaseOverlay(p adaptive.SessionPhase) Overlay {
	return func(cfg Config) Config {
		switch p {
		case adaptive.PhaseStart:
			cfg.IncludeQuestion = true
		case adaptive.PhaseStuck:
			cfg.Style = StyleExampleFirst
			cfg.Tone = TonePatient
			cfg.IncludeExample = true
			cfg.MaxTokens = raiseTokens(cfg.MaxTokens, 650)
		case adaptive.PhaseProgressCheck, adaptive.PhaseWrapUp:
			cfg.Length = LengthShort
			cfg.IncludeQuestion = true
			cfg.MaxTokens = capTokens(cfg.MaxTokens, 250)
		}
		return cfg
	}
}

// applyOverrides applies explicit caller choices on top of the folded
// configuration. Overrides always win; overlays never see them.
func applyOverrides(cfg Config, ov Overrides) Config {
	if ov.Style != "" {
		cfg.Style = ov.Style
	}
	if ov.Tone != "" {
		cfg.Tone = ov.Tone
	}
	if ov.Length != "" {
		cfg.Length = ov.Length
	}
	if ov.MaxTokens > 0 {
		cfg.MaxTokens = ov.MaxTokens
	}
	return cfg
}

func raiseTokens(current, floor int) int {
	if current < floor {
		return floor
	}
	return current
}

func capTokens(current, ceiling int) int {
	if current > ceiling {
		return ceiling
	}
	return current
}
