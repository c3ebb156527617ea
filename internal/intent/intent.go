// Package intent classifies user messages into a closed set of tutoring
// intents using a two-tier strategy: an ordered pattern-rule fast path, and a
// single bounded LLM fallback call for inputs the fast path cannot resolve
// with confidence.
//
// Every classification, fast or fallback, is memoized for a short TTL keyed
// by a truncated hash of the normalized text, so rapid repeated queries are
// absorbed without re-running pattern matching or the fallback call.
package intent

// Intent is a closed-set label describing what the user wants.
type Intent string

const (
	IntentExplain       Intent = "explain"
	IntentDefine        Intent = "define"
	IntentSolve         Intent = "solve"
	IntentExample       Intent = "example"
	IntentCompare       Intent = "compare"
	IntentSummarize     Intent = "summarize"
	IntentQuizMe        Intent = "quiz_me"
	IntentFlashcards    Intent = "flashcards"
	IntentGenerateImage Intent = "generate_image"
	IntentPractice      Intent = "practice"
	IntentHint          Intent = "hint"
	IntentCheckWork     Intent = "check_work"
	IntentFollowUp      Intent = "follow_up"
	IntentGreeting      Intent = "greeting"
	IntentFarewell      Intent = "farewell"
	IntentConfused      Intent = "confused"
	IntentCasualChat    Intent = "casual_chat"
	IntentUnclear       Intent = "unclear"
)

// All lists every valid intent label. The fallback classifier offers exactly
// this set to the LLM and parses the reply against it.
var All = []Intent{
	IntentExplain, IntentDefine, IntentSolve, IntentExample, IntentCompare,
	IntentSummarize, IntentQuizMe, IntentFlashcards, IntentGenerateImage,
	IntentPractice, IntentHint, IntentCheckWork, IntentFollowUp,
	IntentGreeting, IntentFarewell, IntentConfused, IntentCasualChat,
	IntentUnclear,
}

// IsValid reports whether i is a recognised intent label.
func (i Intent) IsValid() bool {
	for _, v := range All {
		if i == v {
			return true
		}
	}
	return false
}

// Confidence is the qualitative certainty tier of a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// IsValid reports whether c is a recognised confidence tier.
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Slots carries structured fragments extracted alongside the intent.
type Slots struct {
	// Topic is the primary topic phrase, if one was extracted.
	Topic string

	// Question is the first extracted question, if any.
	Question string

	// MathExpression is the first detected math fragment, if any.
	MathExpression string
}

// Result is the outcome of one classification call.
type Result struct {
	// Intent is the resolved label. Never empty; unresolvable inputs yield
	// IntentUnclear.
	Intent Intent

	// Confidence is the certainty tier of the classification.
	Confidence Confidence

	// Slots holds extracted structured fragments.
	Slots Slots

	// UsedFallback reports whether the LLM fallback call contributed to this
	// result.
	UsedFallback bool

	// Memoized reports that this result was served from the memo cache and no
	// classification work ran. A memoized fallback result keeps UsedFallback
	// true but did not issue a provider call.
	Memoized bool
}
