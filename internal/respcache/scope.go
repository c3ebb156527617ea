package respcache

import (
	"strings"

	"github.com/lessonloop/tutorcore/pkg/cachestore"
)

// personalMarkers force user scope: the answer depends on who is asking.
var personalMarkers = []string{
	"my ", " me ", " me?", " me.", "i'm ", "im ", "i am ", "for me",
	"our ", "mine",
}

// factualStems force global scope: the answer is the same for everyone.
var factualStems = []string{
	"what is ", "what are ", "who is ", "who was ", "when is ", "when was ",
	"when did ", "where is ", "define ", "definition of ", "meaning of ",
	"how many ", "how much is ",
}

// ContentType classifies a query for TTL tiering.
type ContentType string

const (
	// ContentFactual answers change rarely (definitions, facts, dates).
	ContentFactual ContentType = "factual"

	// ContentConceptual answers are stable explanations of ideas.
	ContentConceptual ContentType = "conceptual"

	// ContentProcedural answers describe steps and may drift with tooling.
	ContentProcedural ContentType = "procedural"

	// ContentPersonalized answers depend on the asking user.
	ContentPersonalized ContentType = "personalized"
)

// proceduralStems mark how-to / step-by-step queries.
var proceduralStems = []string{
	"how to ", "how do ", "steps to ", "walk me through ", "procedure",
}

// ChooseScope selects the cache scope for a query. Priority: explicit
// personalization (markers in the text, or declared by the caller) forces
// user scope; factual question stems force global scope; otherwise default
// to user scope when any user context exists, else global.
func ChooseScope(normalized, userID string, personalized bool) cachestore.Scope {
	padded := " " + normalized + " "
	if personalized || containsAnyOf(padded, personalMarkers) {
		if userID != "" {
			return cachestore.ScopeUser
		}
		return cachestore.ScopeSession
	}
	for _, stem := range factualStems {
		if strings.HasPrefix(normalized, stem) {
			return cachestore.ScopeGlobal
		}
	}
	if userID != "" {
		return cachestore.ScopeUser
	}
	return cachestore.ScopeGlobal
}

// ClassifyContent buckets a query for TTL tiering. Personalization dominates;
// then procedural stems; then factual stems; everything else is conceptual.
func ClassifyContent(normalized string, personalized bool) ContentType {
	padded := " " + normalized + " "
	if personalized || containsAnyOf(padded, personalMarkers) {
		return ContentPersonalized
	}
	for _, stem := range proceduralStems {
		if strings.HasPrefix(normalized, stem) || strings.Contains(normalized, stem) {
			return ContentProcedural
		}
	}
	for _, stem := range factualStems {
		if strings.HasPrefix(normalized, stem) {
			return ContentFactual
		}
	}
	return ContentConceptual
}

func containsAnyOf(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
