// Package respconfig builds the response configuration for a decision: the
// style, tone, length and token budget a reply should be generated with.
//
// A configuration starts from a per-intent base table and is refined by a
// fixed sequence of pure overlays (adaptive state, user memory, session
// phase). Later overlays win on direct conflicts. Explicit caller overrides
// are applied after all overlays and are never contradicted by them.
package respconfig

import (
	"github.com/lessonloop/tutorcore/internal/intent"
)

// Style directs the structure of a generated reply.
type Style string

const (
	StyleConcise           Style = "concise"
	StyleDetailed          Style = "detailed"
	StyleStepByStep        Style = "step_by_step"
	StyleExampleFirst      Style = "example_first"
	StyleAnalogy           Style = "analogy"
	StyleSocratic          Style = "socratic"
	StyleComparison        Style = "comparison"
	StyleVisualDescription Style = "visual_description"
)

// IsValid reports whether s is a recognised style.
func (s Style) IsValid() bool {
	switch s {
	case StyleConcise, StyleDetailed, StyleStepByStep, StyleExampleFirst,
		StyleAnalogy, StyleSocratic, StyleComparison, StyleVisualDescription:
		return true
	}
	return false
}

// Tone directs the voice of a generated reply.
type Tone string

const (
	ToneNeutral     Tone = "neutral"
	ToneEncouraging Tone = "encouraging"
	TonePatient     Tone = "patient"
	ToneDirect      Tone = "direct"
	TonePlayful     Tone = "playful"
)

// IsValid reports whether t is a recognised tone.
func (t Tone) IsValid() bool {
	switch t {
	case ToneNeutral, ToneEncouraging, TonePatient, ToneDirect, TonePlayful:
		return true
	}
	return false
}

// Length is the target reply length bucket.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// shorterOf returns the shorter of two length buckets.
func shorterOf(a, b Length) Length {
	if lengthRank(a) <= lengthRank(b) {
		return a
	}
	return b
}

func lengthRank(l Length) int {
	switch l {
	case LengthShort:
		return 0
	case LengthMedium:
		return 1
	default:
		return 2
	}
}

// Config is the ephemeral response configuration for a single decision.
type Config struct {
	Style           Style
	Tone            Tone
	Length          Length
	IncludeQuestion bool
	IncludeExample  bool
	OfferVisual     bool
	MaxTokens       int
}

// Overrides are explicit caller choices. A zero field means no override.
// Overrides are applied after every overlay and always win.
type Overrides struct {
	Style     Style
	Tone      Tone
	Length    Length
	MaxTokens int
}

// base configurations per intent. Intents missing from the table use
// defaultBase.
var intentBase = map[intent.Intent]Config{
	intent.IntentExplain:    {Style: StyleDetailed, Tone: ToneNeutral, Length: LengthMedium, IncludeExample: true, MaxTokens: 600},
	intent.IntentDefine:     {Style: StyleConcise, Tone: ToneNeutral, Length: LengthShort, MaxTokens: 200},
	intent.IntentSolve:      {Style: StyleStepByStep, Tone: ToneNeutral, Length: LengthLong, MaxTokens: 700},
	intent.IntentExample:    {Style: StyleExampleFirst, Tone: ToneNeutral, Length: LengthMedium, IncludeExample: true, MaxTokens: 500},
	intent.IntentCompare:    {Style: StyleComparison, Tone: ToneNeutral, Length: LengthMedium, MaxTokens: 500},
	intent.IntentSummarize:  {Style: StyleConcise, Tone: ToneNeutral, Length: LengthShort, MaxTokens: 300},
	intent.IntentQuizMe:     {Style: StyleSocratic, Tone: ToneEncouraging, Length: LengthShort, IncludeQuestion: true, MaxTokens: 250},
	intent.IntentPractice:   {Style: StyleSocratic, Tone: ToneEncouraging, Length: LengthMedium, IncludeQuestion: true, MaxTokens: 400},
	intent.IntentHint:       {Style: StyleSocratic, Tone: ToneEncouraging, Length: LengthShort, MaxTokens: 200},
	intent.IntentCheckWork:  {Style: StyleStepByStep, Tone: ToneEncouraging, Length: LengthMedium, MaxTokens: 500},
	intent.IntentFollowUp:   {Style: StyleConcise, Tone: ToneNeutral, Length: LengthShort, MaxTokens: 300},
	intent.IntentGreeting:   {Style: StyleConcise, Tone: ToneEncouraging, Length: LengthShort, IncludeQuestion: true, MaxTokens: 150},
	intent.IntentFarewell:   {Style: StyleConcise, Tone: ToneEncouraging, Length: LengthShort, MaxTokens: 150},
	intent.IntentConfused:   {Style: StyleExampleFirst, Tone: TonePatient, Length: LengthMedium, IncludeExample: true, MaxTokens: 650},
	intent.IntentCasualChat: {Style: StyleConcise, Tone: TonePlayful, Length: LengthShort, MaxTokens: 150},
	intent.IntentUnclear:    {Style: StyleConcise, Tone: ToneNeutral, Length: LengthShort, IncludeQuestion: true, MaxTokens: 200},
}

var defaultBase = Config{Style: StyleDetailed, Tone: ToneNeutral, Length: LengthMedium, MaxTokens: 500}

// BaseFor returns the base configuration for an intent.
func BaseFor(i intent.Intent) Config {
	if cfg, ok := intentBase[i]; ok {
		return cfg
	}
	return defaultBase
}

// MemorySnapshot is the slice of durable user preferences the mapper
// consumes. Values are free-form strings as stored by the memory system;
// unrecognised values are ignored.
type MemorySnapshot struct {
	LearningStyle      string // "visual", "examples", "analogies", "socratic"
	Difficulty         string // "beginner", "intermediate", "advanced"
	Pace               string // "fast", "slow"
	CommunicationStyle string // "encouraging", "direct", "playful"
}
