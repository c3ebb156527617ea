package decision

import (
	"github.com/lessonloop/tutorcore/internal/adaptive"
	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/respconfig"
)

// intentHints are per-intent generation directives appended to the prompt.
var intentHints = map[intent.Intent]string{
	intent.IntentConfused:  "The student is confused. Explain the concept again differently and more simply than before.",
	intent.IntentHint:      "Give a nudge toward the answer without revealing it.",
	intent.IntentCheckWork: "Check the student's work step by step and point to the first error, if any.",
	intent.IntentQuizMe:    "Pose one question at a time and wait for the student's answer.",
	intent.IntentSummarize: "Summarize only what was actually covered in this session.",
	intent.IntentPractice:  "Offer one practice problem matched to what the student just worked on.",
	intent.IntentUnclear:   "The request was unclear. Ask one short clarifying question before answering.",
}

// assembleHints builds the natural-language prompt directives for a
// freeform response: the per-intent instruction, engagement-driven
// adjustments, and question suppression or re-engagement.
func assembleHints(in intent.Intent, state *adaptive.State, cfg respconfig.Config) []string {
	var hints []string

	if h, ok := intentHints[in]; ok {
		hints = append(hints, h)
	}

	if state != nil {
		if state.Engagement == adaptive.EngagementLow {
			hints = append(hints, "The student seems disengaged. Keep it brief and invite them back in.")
		}
		if state.ConfusionCount >= 2 {
			hints = append(hints, "Previous explanations did not land. Try a concrete everyday example.")
		}
	}

	if cfg.IncludeQuestion {
		hints = append(hints, "End with one short question to keep the student engaged.")
	} else {
		hints = append(hints, "Do not end with a question.")
	}
	if cfg.IncludeExample {
		hints = append(hints, "Include a worked example.")
	}
	if cfg.OfferVisual {
		hints = append(hints, "Offer to draw a diagram if it would help.")
	}

	return hints
}
