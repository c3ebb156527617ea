package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lessonloop/tutorcore/internal/adaptive"
	"github.com/lessonloop/tutorcore/internal/complexity"
	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/respcache"
	"github.com/lessonloop/tutorcore/internal/respconfig"
	"github.com/lessonloop/tutorcore/internal/router"
	"github.com/lessonloop/tutorcore/pkg/cachestore"
	"github.com/lessonloop/tutorcore/pkg/provider/llm"
	"github.com/lessonloop/tutorcore/pkg/provider/llm/mock"
)

func newTestController(t *testing.T, opts ...Option) (*Controller, *respcache.Cache, *guardrails.Enforcer) {
	t.Helper()
	cache := respcache.New(cachestore.NewMemStore())
	enforcer := guardrails.NewEnforcer(guardrails.DefaultPolicy())
	ctrl := NewController(
		intent.NewClassifier(),
		complexity.NewAnalyzer(),
		router.New("fast-model", "advanced-model"),
		cache,
		enforcer,
		opts...,
	)
	return ctrl, cache, enforcer
}

func session() SessionContext {
	return SessionContext{
		SessionID: "sess-1",
		UserID:    "user-1",
		StartedAt: time.Now().Add(-5 * time.Minute),
	}
}

func TestMakeDecisionRequiresSession(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController(t)
	_, err := ctrl.MakeDecision(context.Background(), "what is mitosis", SessionContext{}, respconfig.MemorySnapshot{}, adaptive.NewState())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestMakeDecisionFactualQuestion(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController(t)
	d, err := ctrl.MakeDecision(context.Background(), "what is mitosis", session(), respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}

	if d.Action != ActionRespond {
		t.Errorf("action = %q, want respond", d.Action)
	}
	if d.Metadata.Intent != intent.IntentExplain {
		t.Errorf("intent = %q, want explain", d.Metadata.Intent)
	}
	if d.Metadata.Confidence != intent.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", d.Metadata.Confidence)
	}
	if d.Metadata.UsedFallback {
		t.Error("fast-path classification must not be attributed to the fallback")
	}
	if d.Route.Model != "fast-model" {
		t.Errorf("model = %q, a simple definition should route to the fast tier", d.Route.Model)
	}
	if d.Config.MaxTokens <= 0 {
		t.Error("decision config must carry a positive token budget")
	}
	if !d.PostActions.UpdateSignals {
		t.Error("signal update post-action is always on")
	}
	if len(d.PromptHints) == 0 {
		t.Error("freeform decisions carry prompt hints")
	}
}

func TestMakeDecisionStructuredShortCircuit(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController(t)

	tests := []struct {
		text   string
		action Action
	}{
		{"draw a diagram of the water cycle", ActionGenerateImage},
		{"make flashcards for these verbs", ActionCreateFlashcards},
	}
	for _, tt := range tests {
		d, err := ctrl.MakeDecision(context.Background(), tt.text, session(), respconfig.MemorySnapshot{}, adaptive.NewState())
		if err != nil {
			t.Fatalf("MakeDecision(%q): %v", tt.text, err)
		}
		if d.Action != tt.action {
			t.Errorf("action for %q = %q, want %q", tt.text, d.Action, tt.action)
		}
		if d.Route.Model != "" {
			t.Errorf("structured action %q should not carry a route", tt.action)
		}
	}
}

func TestMakeDecisionQuizAction(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController(t)
	d, err := ctrl.MakeDecision(context.Background(), "quiz me on the french revolution", session(), respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if d.Action != ActionCreateQuiz {
		t.Errorf("action = %q, want create_quiz", d.Action)
	}
	if d.Config.Style != respconfig.StyleSocratic {
		t.Errorf("quiz config style = %q, want socratic", d.Config.Style)
	}
}

func TestMakeDecisionCacheHit(t *testing.T) {
	t.Parallel()

	ctrl, cache, _ := newTestController(t)
	ctx := context.Background()

	err := cache.Write(ctx, respcache.WriteRequest{
		Query:    "what is the capital of France",
		Response: "Paris.",
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	sess := session()
	sess.UserID = "" // keep the lookup in the global scope
	d, err := ctrl.MakeDecision(ctx, "what is the capital of France", sess, respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if d.Action != ActionUseCache {
		t.Fatalf("action = %q, want use_cache", d.Action)
	}
	if d.CachedResponse != "Paris." {
		t.Errorf("cached response = %q", d.CachedResponse)
	}
	if !d.Metadata.CacheHit {
		t.Error("metadata should record the cache hit")
	}
	if d.Route.Model != "" {
		t.Error("a cache hit should not route to any model")
	}
}

func TestMakeDecisionStuckEscalation(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController(t)

	state := adaptive.NewState()
	state.MessageCount = 9
	state.ConfusionCount = 3

	d, err := ctrl.MakeDecision(context.Background(), "i still don't get it", session(), respconfig.MemorySnapshot{}, state)
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}

	if d.Metadata.Phase != adaptive.PhaseStuck {
		t.Errorf("phase = %q, want stuck", d.Metadata.Phase)
	}
	if d.Config.Style != respconfig.StyleExampleFirst {
		t.Errorf("style = %q, want example_first", d.Config.Style)
	}
	if d.Config.Tone != respconfig.TonePatient {
		t.Errorf("tone = %q, want patient", d.Config.Tone)
	}
	if d.Config.MaxTokens < 650 {
		t.Errorf("maxTokens = %d, stuck escalation should raise the budget", d.Config.MaxTokens)
	}
}

func TestMakeDecisionTokenClamp(t *testing.T) {
	t.Parallel()

	policy := guardrails.DefaultPolicy()
	policy.MaxTokensPerSession = 1000
	enforcer := guardrails.NewEnforcer(policy)
	enforcer.RecordTokens("sess-1", 900)

	ctrl := NewController(
		intent.NewClassifier(),
		complexity.NewAnalyzer(),
		router.New("fast-model", "advanced-model"),
		respcache.New(cachestore.NewMemStore()),
		enforcer,
	)

	d, err := ctrl.MakeDecision(context.Background(), "explain photosynthesis step by step", session(), respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if d.Config.MaxTokens > 100 {
		t.Errorf("config maxTokens = %d, must not exceed the remaining session budget of 100", d.Config.MaxTokens)
	}
	if d.Route.MaxTokens > 100 {
		t.Errorf("route maxTokens = %d, must not exceed the remaining session budget of 100", d.Route.MaxTokens)
	}
}

func TestMakeDecisionBudgetExhausted(t *testing.T) {
	t.Parallel()

	policy := guardrails.DefaultPolicy()
	policy.MaxTokensPerSession = 1000
	enforcer := guardrails.NewEnforcer(policy)
	enforcer.RecordTokens("sess-1", 1000)

	ctrl := NewController(
		intent.NewClassifier(),
		complexity.NewAnalyzer(),
		router.New("fast-model", "advanced-model"),
		respcache.New(cachestore.NewMemStore()),
		enforcer,
	)

	d, err := ctrl.MakeDecision(context.Background(), "explain photosynthesis step by step", session(), respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if d.Config.MaxTokens != 0 {
		t.Errorf("config maxTokens = %d, want 0 with the session budget spent", d.Config.MaxTokens)
	}
	if d.Route.MaxTokens != 0 {
		t.Errorf("route maxTokens = %d, want 0 with the session budget spent", d.Route.MaxTokens)
	}
	if d.Route.Model == "" {
		t.Error("the route should still name a model; only the budget is clamped")
	}
}

func TestMakeDecisionMemoizedFallbackChargedOnce(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "EXPLAIN"}}
	policy := guardrails.DefaultPolicy()
	policy.MaxFallbackCallsPerSession = 2
	enforcer := guardrails.NewEnforcer(policy)

	ctrl := NewController(
		intent.NewClassifier(intent.WithProvider(provider)),
		complexity.NewAnalyzer(),
		router.New("fast-model", "advanced-model"),
		respcache.New(cachestore.NewMemStore()),
		enforcer,
	)

	const text = "florb the grindle vexing snarp"
	if _, err := ctrl.MakeDecision(context.Background(), text, session(), respconfig.MemorySnapshot{}, adaptive.NewState()); err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	d, err := ctrl.MakeDecision(context.Background(), text, session(), respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("provider calls = %d, want 1 (second classification is memoized)", provider.CallCount())
	}
	if !d.Metadata.UsedFallback {
		t.Error("metadata should keep the fallback attribution on memo hits")
	}
	if !enforcer.CanFallback("sess-1") {
		t.Error("a memoized classification must not spend a second fallback allowance")
	}
}

func TestMakeDecisionFallbackAccounting(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "EXPLAIN"}}
	policy := guardrails.DefaultPolicy()
	policy.MaxFallbackCallsPerSession = 1
	enforcer := guardrails.NewEnforcer(policy)

	ctrl := NewController(
		intent.NewClassifier(intent.WithProvider(provider)),
		complexity.NewAnalyzer(),
		router.New("fast-model", "advanced-model"),
		respcache.New(cachestore.NewMemStore()),
		enforcer,
	)

	// Gibberish resolves nothing on the fast path and triggers the fallback.
	d, err := ctrl.MakeDecision(context.Background(), "florb the grindle vexing snarp", session(), respconfig.MemorySnapshot{}, adaptive.NewState())
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if !d.Metadata.UsedFallback {
		t.Error("fallback use should be recorded in metadata")
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.CallCount())
	}
	if enforcer.CanFallback("sess-1") {
		t.Error("the fallback allowance should have been charged")
	}
}

func TestClassifyIntentSurface(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController(t)
	res := ctrl.ClassifyIntent(context.Background(), "sess-1", "what is mitosis", nil)
	if res.Intent != intent.IntentExplain || res.Confidence != intent.ConfidenceHigh {
		t.Errorf("result = %+v, want explain/high", res)
	}
}

func TestMakeDecisionDeterministic(t *testing.T) {
	t.Parallel()

	text := "compare mitosis and meiosis"
	run := func() *AIDecision {
		ctrl, _, _ := newTestController(t)
		d, err := ctrl.MakeDecision(context.Background(), text, session(), respconfig.MemorySnapshot{}, adaptive.NewState())
		if err != nil {
			t.Fatalf("MakeDecision: %v", err)
		}
		return d
	}

	a, b := run(), run()
	if a.Metadata.Intent != b.Metadata.Intent || a.Metadata.Confidence != b.Metadata.Confidence {
		t.Errorf("classification not deterministic: %+v vs %+v", a.Metadata, b.Metadata)
	}
	if a.Config != b.Config {
		t.Errorf("config not deterministic: %+v vs %+v", a.Config, b.Config)
	}
	if a.Route != b.Route {
		t.Errorf("route not deterministic: %+v vs %+v", a.Route, b.Route)
	}
}
