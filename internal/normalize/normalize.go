// Package normalize turns raw user text into a [ProcessedInput]: cleaned
// text, an input shape classification, and extracted questions, topics, math
// expressions, and code blocks.
//
// Processing is a pure function with no side effects. It never fails: when
// cleaning would yield an empty string, a punctuation-stripped version of the
// original input is used instead, so downstream classifiers always receive a
// best-effort result.
package normalize

import (
	"regexp"
	"strings"
)

// Shape classifies the structural form of a user message.
type Shape string

const (
	ShapeSentence Shape = "sentence"
	ShapeBullets  Shape = "bullets"
	ShapeFragment Shape = "fragment"
	ShapeCode     Shape = "code"
	ShapeMath     Shape = "math"
	ShapeMixed    Shape = "mixed"
)

// IsValid reports whether s is a recognised input shape.
func (s Shape) IsValid() bool {
	switch s {
	case ShapeSentence, ShapeBullets, ShapeFragment, ShapeCode, ShapeMath, ShapeMixed:
		return true
	}
	return false
}

// ProcessedInput is the derived, per-message view of raw user text.
// It is ephemeral: recomputed on every message and never persisted.
type ProcessedInput struct {
	// Original is the raw input exactly as received.
	Original string

	// Cleaned is the whitespace-collapsed, trimmed text used for matching.
	Cleaned string

	// Shape is the structural classification of the input.
	Shape Shape

	// WordCount is the number of whitespace-separated words in Cleaned.
	WordCount int

	// Questions holds every extracted substring ending in '?'.
	Questions []string

	// Topics holds up to three deduplicated topic phrases.
	Topics []string

	// MathExpressions holds detected math fragments.
	MathExpressions []string

	// CodeBlocks holds fenced code blocks and substantial inline code spans.
	CodeBlocks []string
}

// HasQuestion reports whether at least one question was extracted.
func (p *ProcessedInput) HasQuestion() bool { return len(p.Questions) > 0 }

// HasMath reports whether at least one math expression was detected.
func (p *ProcessedInput) HasMath() bool { return len(p.MathExpressions) > 0 }

// HasCode reports whether at least one code block was detected.
func (p *ProcessedInput) HasCode() bool { return len(p.CodeBlocks) > 0 }

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctOnlyRe  = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")

	bulletLineRe = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)

	// Digit-operator-digit adjacency, optionally spaced: "2+2", "3 * x", "y = 7".
	mathAdjacencyRe = regexp.MustCompile(`(?:\d|\b[a-z]\b)\s*[-+*/^=]\s*(?:\d|\b[a-z]\b)`)

	// Topic phrases: "about X", "on X", "regarding X", "for X".
	topicRe = regexp.MustCompile(`(?i)\b(?:about|on|regarding|for)\s+((?:the\s+|a\s+|an\s+)?[\p{L}\p{N}][\p{L}\p{N} '-]{1,40}?)(?:[.,;:!?]|$)`)

	// Question fragments: everything from a sentence boundary up to a '?'.
	questionRe = regexp.MustCompile(`[^.!?\n]+\?`)
)

// mathFunctionKeywords are named functions whose presence marks an expression
// as mathematical even without operator adjacency.
var mathFunctionKeywords = []string{
	"sqrt", "sin(", "cos(", "tan(", "log(", "ln(", "integral", "derivative",
	"factorial", "modulo",
}

// Process converts raw text into a [ProcessedInput]. It never returns an
// error; an all-punctuation or empty input yields a ProcessedInput whose
// Cleaned field is the stripped original.
func Process(raw string) ProcessedInput {
	cleaned := clean(raw)
	if cleaned == "" {
		cleaned = strings.TrimSpace(punctOnlyRe.ReplaceAllString(raw, ""))
	}

	p := ProcessedInput{
		Original:        raw,
		Cleaned:         cleaned,
		WordCount:       countWords(cleaned),
		Questions:       extractQuestions(raw),
		Topics:          extractTopics(cleaned),
		MathExpressions: extractMath(raw),
		CodeBlocks:      extractCode(raw),
	}
	p.Shape = detectShape(raw, &p)
	return p
}

// clean collapses whitespace and trims the input.
func clean(raw string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
}

func countWords(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// detectShape applies ordered structural checks; the first match wins.
// Order: code > bullets > math > fragment > mixed > sentence.
func detectShape(raw string, p *ProcessedInput) Shape {
	hasCode := strings.Contains(raw, "```") || strings.Contains(raw, "`")
	hasBullets := bulletLineRe.MatchString(raw)
	hasMath := len(p.MathExpressions) > 0

	signals := 0
	for _, on := range []bool{hasCode, hasBullets, hasMath} {
		if on {
			signals++
		}
	}
	if signals > 1 {
		return ShapeMixed
	}

	switch {
	case hasCode:
		return ShapeCode
	case hasBullets:
		return ShapeBullets
	case hasMath:
		return ShapeMath
	case p.WordCount > 0 && p.WordCount <= 3 && !strings.ContainsAny(p.Cleaned, ".!?"):
		return ShapeFragment
	default:
		return ShapeSentence
	}
}

// extractQuestions returns every substring of raw ending in '?'.
func extractQuestions(raw string) []string {
	matches := questionRe.FindAllString(raw, -1)
	questions := make([]string, 0, len(matches))
	for _, m := range matches {
		if q := strings.TrimSpace(m); q != "?" && q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

// extractTopics finds up to three deduplicated topic phrases via
// "about/on/regarding/for X" patterns.
func extractTopics(cleaned string) []string {
	matches := topicRe.FindAllStringSubmatch(cleaned, -1)
	seen := make(map[string]bool, len(matches))
	var topics []string
	for _, m := range matches {
		topic := strings.ToLower(strings.TrimSpace(m[1]))
		topic = strings.TrimPrefix(topic, "the ")
		topic = strings.TrimPrefix(topic, "a ")
		topic = strings.TrimPrefix(topic, "an ")
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
		if len(topics) == 3 {
			break
		}
	}
	return topics
}

// extractMath detects math fragments by numeric-operator adjacency and by
// named-function keywords.
func extractMath(raw string) []string {
	lower := strings.ToLower(raw)

	var exprs []string
	exprs = append(exprs, mathAdjacencyRe.FindAllString(lower, -1)...)

	for _, kw := range mathFunctionKeywords {
		if idx := strings.Index(lower, kw); idx >= 0 {
			// Capture the keyword and a short trailing window as the expression.
			end := idx + len(kw) + 24
			if end > len(lower) {
				end = len(lower)
			}
			exprs = append(exprs, strings.TrimSpace(lower[idx:end]))
		}
	}
	return dedupe(exprs)
}

// extractCode returns fenced code blocks plus inline code spans that look
// substantial (longer than a single identifier).
func extractCode(raw string) []string {
	var blocks []string

	fenced := fencedCodeRe.FindAllString(raw, -1)
	for _, f := range fenced {
		body := strings.Trim(f, "`")
		// Strip an optional language tag on the first line.
		if i := strings.IndexByte(body, '\n'); i >= 0 {
			first := strings.TrimSpace(body[:i])
			if first != "" && !strings.ContainsAny(first, " \t") && len(first) < 16 {
				body = body[i+1:]
			}
		}
		if body = strings.TrimSpace(body); body != "" {
			blocks = append(blocks, body)
		}
	}

	// Inline spans outside fences: only keep ones with code-like weight.
	withoutFences := fencedCodeRe.ReplaceAllString(raw, "")
	for _, m := range inlineCodeRe.FindAllStringSubmatch(withoutFences, -1) {
		span := strings.TrimSpace(m[1])
		if len(span) >= 8 || strings.ContainsAny(span, "(){};=") {
			blocks = append(blocks, span)
		}
	}
	return blocks
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
