package decision

import (
	"context"

	"github.com/lessonloop/tutorcore/internal/complexity"
	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/respcache"
	"github.com/lessonloop/tutorcore/internal/router"
)

// The methods below are the controller's library surface for callers that
// need a single stage instead of a full decision: the chat-turn handler and
// the offline cache-maintenance job.

// ClassifyIntent runs intent classification under the session's guardrails.
func (c *Controller) ClassifyIntent(ctx context.Context, sessionID, text string, recentContext []string) intent.Result {
	res := c.classifier.Classify(ctx, text, intent.Options{
		AllowFallback: sessionID != "" && c.enforcer.CanFallback(sessionID),
		RecentContext: guardrails.HistoryWindow(c.enforcer.Policy(), recentContext),
	})
	if res.UsedFallback && sessionID != "" {
		c.enforcer.AllowFallback(sessionID)
	}
	return res
}

// AnalyzeQuery runs the complexity analyzer alone.
func (c *Controller) AnalyzeQuery(ctx context.Context, query string) complexity.Analysis {
	return c.analyzer.Analyze(ctx, query)
}

// RouteQuery maps an analysis to a concrete routing decision.
func (c *Controller) RouteQuery(a complexity.Analysis, ov router.Overrides) router.Decision {
	return c.router.Route(a, ov)
}

// LookupCache checks the response cache for query.
func (c *Controller) LookupCache(ctx context.Context, req respcache.LookupRequest) (*respcache.Hit, bool) {
	return c.cache.Lookup(ctx, req)
}

// WriteCache stores a generated response for reuse.
func (c *Controller) WriteCache(ctx context.Context, req respcache.WriteRequest) error {
	return c.cache.Write(ctx, req)
}

// InvalidateCache removes one cached query for the given identity context.
func (c *Controller) InvalidateCache(ctx context.Context, req respcache.LookupRequest) error {
	return c.cache.Invalidate(ctx, req)
}

// CleanupExpiredCache purges expired cache entries.
func (c *Controller) CleanupExpiredCache(ctx context.Context) (int64, error) {
	return c.cache.CleanupExpired(ctx)
}
