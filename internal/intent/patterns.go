package intent

import "strings"

// Signal pattern sets. These are checked before the intent rules because they
// describe the user's state rather than a request, and a stateful signal must
// win over a superficially matching request pattern ("I don't understand how
// X works" is confusion, not an EXPLAIN request).
//
// The adaptive tracker consumes the same sets so that classification and
// engagement accounting never disagree about what counts as a signal.

// confusionSignals mark a message as expressing lack of understanding.
var confusionSignals = []string{
	"i don't understand", "i dont understand", "i'm confused", "im confused",
	"i am confused", "this doesn't make sense", "this makes no sense",
	"i'm lost", "im lost", "what do you mean", "i don't get it",
	"i dont get it", "still don't get", "not following", "huh?",
	"that confused me", "can you say that differently",
}

// completionSignals mark a message as confirming understanding.
var completionSignals = []string{
	"got it", "makes sense", "that makes sense", "i understand now",
	"i get it", "now i get it", "understood", "that helps", "that helped",
	"crystal clear", "ok i see", "oh i see", "ah i see",
}

// disengagementSignals mark a message as disengaged or dismissive.
var disengagementSignals = []string{
	"whatever", "i don't care", "i dont care", "this is boring", "boring",
	"can we stop", "i'm done", "im done", "forget it", "never mind",
	"nevermind", "meh",
}

// engagementSignals mark a message as clearly engaged.
var engagementSignals = []string{
	"interesting", "tell me more", "that's cool", "thats cool", "wow",
	"awesome", "fascinating", "i love this", "what about", "oh nice",
	"this is fun",
}

// IsConfusionSignal reports whether text contains a confusion signal.
func IsConfusionSignal(text string) bool {
	return containsAny(strings.ToLower(text), confusionSignals)
}

// IsCompletionSignal reports whether text contains an understanding-confirmed signal.
func IsCompletionSignal(text string) bool {
	return containsAny(strings.ToLower(text), completionSignals)
}

// IsDisengagementSignal reports whether text contains a disengagement signal.
func IsDisengagementSignal(text string) bool {
	return containsAny(strings.ToLower(text), disengagementSignals)
}

// IsEngagementSignal reports whether text contains a clear engagement signal.
func IsEngagementSignal(text string) bool {
	return containsAny(strings.ToLower(text), engagementSignals)
}

// rule pairs an intent with its trigger keywords. Keywords are matched
// case-insensitively as substrings of the cleaned text.
type rule struct {
	intent   Intent
	keywords []string
}

// rules is the ordered fast-path dispatch table. It is evaluated top to
// bottom in a single pass; the first matching rule wins at high confidence.
// Order is load-bearing: structured-action intents (quiz, flashcards, image)
// sit above the broad EXPLAIN patterns so that "quiz me about mitosis" does
// not fall through to EXPLAIN.
var rules = []rule{
	{IntentGreeting, []string{
		"hello", "hi there", "hey there", "good morning", "good afternoon",
		"good evening",
	}},
	{IntentFarewell, []string{
		"goodbye", "bye", "see you later", "see ya", "that's all for today",
		"thats all for today", "gotta go",
	}},
	{IntentQuizMe, []string{
		"quiz me", "test me", "ask me questions", "ask me a question",
		"give me a quiz", "pop quiz",
	}},
	{IntentFlashcards, []string{
		"flashcard", "flash card", "make cards", "study cards",
	}},
	{IntentGenerateImage, []string{
		"generate an image", "generate a picture", "draw me", "draw a",
		"show me a picture", "show me an image", "create an image",
		"make a diagram", "diagram of",
	}},
	{IntentSummarize, []string{
		"summarize", "summarise", "summary of", "tl;dr", "tldr", "recap",
		"sum up", "in a nutshell",
	}},
	{IntentHint, []string{
		"give me a hint", "a hint", "give me a clue", "don't tell me the answer",
		"dont tell me the answer", "just a nudge",
	}},
	{IntentCheckWork, []string{
		"check my work", "check my answer", "is this right", "is this correct",
		"did i get it right", "am i right", "is my answer",
	}},
	{IntentExample, []string{
		"give me an example", "an example of", "show me an example",
		"for example?", "examples of",
	}},
	{IntentCompare, []string{
		"difference between", "compare", " versus ", " vs ", " vs.",
		"how is it different", "similarities between",
	}},
	{IntentPractice, []string{
		"practice problem", "practice question", "give me problems",
		"more problems", "let me practice", "practice exercises", "drill me",
	}},
	{IntentSolve, []string{
		"solve", "calculate", "compute", "evaluate", "how much is",
		"what is the value", "work out", "find x", "find the answer",
	}},
	{IntentDefine, []string{
		"define", "definition of", "what does", "meaning of",
	}},
	{IntentExplain, []string{
		"explain", "what is", "what are", "why does", "why is", "why do",
		"how does", "how do", "how is", "help me understand", "teach me",
		"walk me through", "tell me about",
	}},
}

// containsAny reports whether lower contains any of the given keywords as a
// substring. lower must already be lowercased.
func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
