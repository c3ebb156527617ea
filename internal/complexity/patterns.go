package complexity

// Pattern families for the fast scoring path. Each family contributes one
// point per matched phrase to its bucket; the dominant bucket wins. Phrases
// are matched case-insensitively as substrings of the cleaned query.

// simplePatterns indicate definition lookups, yes/no questions, single facts,
// and clarifications.
var simplePatterns = []string{
	"what is", "what are", "what's", "who is", "who was", "when is",
	"when was", "when did", "where is", "where was", "define",
	"definition of", "meaning of", "is it true", "yes or no", "true or false",
	"did you mean", "what do you mean", "which one",
}

// moderatePatterns indicate explanation, example, comparison, and procedure
// requests.
var moderatePatterns = []string{
	"explain", "why does", "why is", "why do", "how does", "how do",
	"how can", "give me an example", "an example of", "show me how",
	"difference between", "compare", " versus ", " vs ", "what happens if",
	"walk me through", "steps to", "how to",
}

// complexPatterns indicate multi-step work, proofs, deep explanations,
// code generation, long-form answers, and multi-part questions.
var complexPatterns = []string{
	"prove", "derive", "derivation of", "step by step", "in depth",
	"in detail", "comprehensive", "thorough", "analyze", "analyse",
	"design a", "implement", "write a program", "write code",
	"write a function", "optimize", "optimise", "trade-off", "tradeoffs",
	"multi-step", "from first principles", "rigorous", "formally",
	"and also", "as well as explain",
}

// complexSubjects raise the complex score when mentioned: topics where even
// short questions tend to need substantial answers.
var complexSubjects = []string{
	"quantum", "calculus", "organic chemistry", "thermodynamics",
	"linear algebra", "differential equation", "machine learning",
	"cryptography", "relativity", "topology", "statistics",
	"electromagnetism", "genetics",
}

// simpleSubjects lower the stakes: topics where questions are usually factual.
var simpleSubjects = []string{
	"spelling", "vocabulary", "arithmetic", "times table", "capital of",
	"date of", "multiplication table",
}

// ComplexSubjects exposes the complex-subject table for the model router's
// upgrade advisory, so routing and scoring share one source of truth.
func ComplexSubjects() []string {
	return complexSubjects
}
