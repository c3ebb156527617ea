package decision

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lessonloop/tutorcore/internal/adaptive"
	"github.com/lessonloop/tutorcore/internal/complexity"
	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/observe"
	"github.com/lessonloop/tutorcore/internal/respcache"
	"github.com/lessonloop/tutorcore/internal/respconfig"
	"github.com/lessonloop/tutorcore/internal/router"
)

// Controller wires the classification, analysis, caching and configuration
// stages into one decision per message.
//
// Safe for concurrent use across sessions. Per-session adaptive state is
// owned by the caller and must be serialized per session.
type Controller struct {
	classifier *intent.Classifier
	analyzer   *complexity.Analyzer
	router     *router.Router
	cache      *respcache.Cache
	enforcer   *guardrails.Enforcer
	log        *slog.Logger
	metrics    *observe.Metrics
	now        func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for degradation events.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics enables decision instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController assembles a Controller from its collaborators. All of them
// are required except the options.
func NewController(
	classifier *intent.Classifier,
	analyzer *complexity.Analyzer,
	rtr *router.Router,
	cache *respcache.Cache,
	enforcer *guardrails.Enforcer,
	opts ...Option,
) *Controller {
	c := &Controller{
		classifier: classifier,
		analyzer:   analyzer,
		router:     rtr,
		cache:      cache,
		enforcer:   enforcer,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MakeDecision resolves one user message into an AIDecision.
//
// The only hard error is a missing session context. Every internal failure
// (fallback timeout, cache store outage, malformed state) degrades to a
// usable decision instead.
func (c *Controller) MakeDecision(ctx context.Context, text string, sess SessionContext, memory respconfig.MemorySnapshot, state *adaptive.State) (*AIDecision, error) {
	if sess.SessionID == "" {
		return nil, ErrNoSession
	}
	ctx, span := observe.StartSpan(ctx, "decision.make")
	defer span.End()
	start := c.now()

	if state == nil {
		state = adaptive.NewState()
	}

	// Rate pressure disables the expensive paths but never fails the turn.
	rateOK := c.enforcer.AllowRequest(sess.SessionID)
	if !rateOK {
		observe.WithTrace(ctx, c.log).Warn("session over rate limit, degrading decision", "session_id", sess.SessionID)
		if c.metrics != nil {
			c.metrics.RecordRateLimited(ctx)
		}
	}

	phase := adaptive.DeterminePhase(state, start.Sub(sess.StartedAt))

	recent := guardrails.HistoryWindow(c.enforcer.Policy(), sess.RecentMessages)
	res := c.classifier.Classify(ctx, text, intent.Options{
		AllowFallback: rateOK && c.enforcer.CanFallback(sess.SessionID),
		RecentContext: recent,
	})
	if res.UsedFallback && !res.Memoized {
		c.enforcer.AllowFallback(sess.SessionID)
		if c.metrics != nil {
			c.metrics.RecordFallback(ctx, "intent", "ok")
		}
	}

	// Structured actions short-circuit: no response config, no cache work.
	switch res.Intent {
	case intent.IntentGenerateImage:
		return c.finish(ctx, &AIDecision{Action: ActionGenerateImage}, res, state, sess, phase, false, start), nil
	case intent.IntentFlashcards:
		return c.finish(ctx, &AIDecision{Action: ActionCreateFlashcards}, res, state, sess, phase, false, start), nil
	}

	// Complexity analysis and the cache lookup are independent; run them
	// in parallel. Neither can fail.
	var (
		analysis complexity.Analysis
		cacheHit *respcache.Hit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analysis = c.analyzer.Analyze(gctx, text)
		return nil
	})
	g.Go(func() error {
		if res.Intent == intent.IntentQuizMe {
			return nil // structured output, never cached
		}
		hit, ok := c.cache.Lookup(gctx, respcache.LookupRequest{
			Query:     text,
			UserID:    sess.UserID,
			SessionID: sess.SessionID,
		})
		if ok {
			cacheHit = hit
		}
		return nil
	})
	_ = g.Wait()

	cfg := respconfig.Build(respconfig.Input{
		Intent: res.Intent,
		State:  state,
		Memory: memory,
		Phase:  phase,
	})
	requested := cfg.MaxTokens
	cfg.MaxTokens = c.enforcer.ClampTokens(sess.SessionID, cfg.MaxTokens)
	if cfg.MaxTokens < requested && c.metrics != nil {
		c.metrics.RecordTokenClamp(ctx)
	}

	if cacheHit != nil {
		d := &AIDecision{
			Action:         ActionUseCache,
			Config:         cfg,
			CachedResponse: cacheHit.Response,
		}
		return c.finish(ctx, d, res, state, sess, phase, true, start), nil
	}

	if router.ShouldUpgrade(analysis, wantsDetail(text), sess.SkillLevel, sess.Subject) {
		analysis = router.Upgrade(analysis)
	}
	if router.ShouldDowngrade(analysis, false, res.Intent == intent.IntentFollowUp) {
		analysis = router.Downgrade(analysis)
	}
	route := c.router.Route(analysis, router.Overrides{TokenCap: cfg.MaxTokens})
	// Overrides cannot express a cap of zero; a fully spent session budget
	// must clamp the route here.
	if route.MaxTokens > cfg.MaxTokens {
		route.MaxTokens = cfg.MaxTokens
	}

	action := ActionRespond
	if res.Intent == intent.IntentQuizMe {
		action = ActionCreateQuiz
	}

	d := &AIDecision{
		Action:      action,
		Config:      cfg,
		Route:       route,
		PromptHints: assembleHints(res.Intent, state, cfg),
	}
	return c.finish(ctx, d, res, state, sess, phase, false, start), nil
}

// finish fills post-actions and metadata common to every decision path.
func (c *Controller) finish(ctx context.Context, d *AIDecision, res intent.Result, state *adaptive.State, sess SessionContext, phase adaptive.SessionPhase, cacheHit bool, start time.Time) *AIDecision {
	tracker := adaptive.NewTracker(state, c.now)

	d.PostActions = PostActions{
		UpdateSignals: true,
		ExtractMemory: c.enforcer.ShouldExtractMemory(state.MessageCount) &&
			c.enforcer.AllowMemory(sess.SessionID),
		OfferVisual:   state.TopicDepth >= 2 && tracker.ShouldOfferVisual(),
		CheckProgress: tracker.ShouldCheckProgress(),
	}

	d.Metadata = Metadata{
		Intent:       res.Intent,
		Confidence:   res.Confidence,
		UsedFallback: res.UsedFallback,
		Phase:        phase,
		CacheHit:     cacheHit,
		Latency:      c.now().Sub(start),
	}
	if c.metrics != nil {
		c.metrics.RecordDecision(ctx, string(res.Intent), string(d.Action), d.Metadata.Latency.Seconds())
	}
	return d
}

// wantsDetail reports an explicit request for depth in the message itself.
func wantsDetail(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "in detail") ||
		strings.Contains(lower, "in depth") ||
		strings.Contains(lower, "thorough")
}
