package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/lessonloop/tutorcore/pkg/cachestore"
)

// politenessPrefixes are stripped from the front of a query, repeatedly,
// until none match. "please can you explain X" and "explain X" must collide
// onto the same cache key.
var politenessPrefixes = []string{
	"please", "pls", "hi", "hello", "hey", "ok", "okay", "so",
	"can you", "could you", "would you", "will you", "i want you to",
	"i need you to", "i'd like you to", "tell me",
}

// stemRules canonicalize common question stems. Each rule rewrites a prefix;
// rules are applied once each, in order, and the result is stable under
// re-application (normalization must be idempotent).
var stemRules = []struct{ from, to string }{
	{"what's ", "what is "},
	{"whats ", "what is "},
	{"who's ", "who is "},
	{"how do you ", "how to "},
	{"how do i ", "how to "},
	{"how can i ", "how to "},
	{"can you explain ", "explain "},
	{"what is a ", "what is "},
	{"what is an ", "what is "},
	{"what is the ", "what is "},
	{"what are the ", "what are "},
	{"define a ", "define "},
	{"define an ", "define "},
	{"define the ", "define "},
}

// Normalize canonicalizes a query for cache identity: lowercase, collapsed
// whitespace, trailing punctuation stripped, politeness prefixes removed, and
// question stems rewritten. Paraphrases like "Please, what's a mitochondrion?"
// and "what is mitochondrion" collide after normalization.
//
// Normalize is idempotent: Normalize(Normalize(q)) == Normalize(q).
func Normalize(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.Join(strings.Fields(q), " ")
	q = strings.TrimRight(q, "?!. ,;:")

	// Strip politeness/greeting prefixes until stable.
	for {
		stripped := q
		for _, p := range politenessPrefixes {
			if strings.HasPrefix(stripped, p+" ") {
				stripped = strings.TrimSpace(strings.TrimPrefix(stripped, p+" "))
			} else if stripped == p {
				stripped = ""
			}
		}
		// Leading punctuation left behind by a stripped greeting ("hi, what…").
		stripped = strings.TrimLeft(stripped, ",. ")
		if stripped == q {
			break
		}
		q = stripped
	}

	for _, r := range stemRules {
		if strings.HasPrefix(q, r.from) {
			q = r.to + strings.TrimPrefix(q, r.from)
		}
	}

	return strings.TrimSpace(q)
}

// Key derives the exact-match cache key: the hash of the scope prefix and the
// normalized query. The scope prefix binds user and session entries to their
// owner so that identical questions from different users never collide.
func Key(scope cachestore.Scope, userID, sessionID, normalized string) string {
	var prefix string
	switch scope {
	case cachestore.ScopeUser:
		prefix = "user:" + userID
	case cachestore.ScopeSession:
		prefix = "session:" + sessionID
	default:
		prefix = "global"
	}
	sum := sha256.Sum256([]byte(prefix + ":" + normalized))
	return hex.EncodeToString(sum[:])
}
