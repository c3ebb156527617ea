// Package maintenance runs the periodic cleanup sweeps: expired cache
// entries, idle adaptive-state snapshots, and stale guardrail ledgers.
//
// A Sweeper owns a cron scheduler; the hosting process starts it once and
// stops it on shutdown. Each sweep is independent, so a failing store does
// not block the other cleanups.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lessonloop/tutorcore/internal/guardrails"
	"github.com/lessonloop/tutorcore/internal/observe"
	"github.com/lessonloop/tutorcore/internal/respcache"
	"github.com/lessonloop/tutorcore/pkg/statestore"
)

// DefaultSchedule is used when no schedule is configured.
const DefaultSchedule = "@every 15m"

// sweepTimeout bounds one full sweep pass.
const sweepTimeout = 30 * time.Second

// Sweeper periodically cleans up the response cache, the state store, and the
// guardrail ledgers.
type Sweeper struct {
	cache      *respcache.Cache
	states     statestore.Store
	enforcer   *guardrails.Enforcer
	idleExpiry time.Duration

	log     *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time

	cron       *cron.Cron
	lastActive int64
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger for sweep results.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics enables the active-sessions gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a Sweeper. cache and states may be nil for deployments
// that run without the corresponding store; their sweeps are skipped.
// idleExpiry bounds how long an untouched session (snapshot or ledger) is kept.
func NewSweeper(cache *respcache.Cache, states statestore.Store, enforcer *guardrails.Enforcer, idleExpiry time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		cache:      cache,
		states:     states,
		enforcer:   enforcer,
		idleExpiry: idleExpiry,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules RunOnce on the given cron expression and starts the
// scheduler. An empty schedule falls back to DefaultSchedule.
func (s *Sweeper) Start(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("maintenance: sweeper already started")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("maintenance sweeper started", "schedule", schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// RunOnce performs one full sweep pass. Store failures are logged and do not
// abort the remaining sweeps.
func (s *Sweeper) RunOnce(ctx context.Context) {
	cutoff := s.now().Add(-s.idleExpiry)

	if s.cache != nil {
		if n, err := s.cache.CleanupExpired(ctx); err != nil {
			s.log.Warn("cache sweep failed", "error", err)
		} else if n > 0 {
			s.log.Info("cache sweep removed expired entries", "removed", n)
		}
	}

	if s.states != nil {
		if n, err := s.states.PurgeIdle(ctx, cutoff); err != nil {
			s.log.Warn("state sweep failed", "error", err)
		} else if n > 0 {
			s.log.Info("state sweep removed idle snapshots", "removed", n)
		}
	}

	if s.enforcer != nil {
		if n := s.enforcer.Sweep(cutoff); n > 0 {
			s.log.Info("guardrail sweep removed idle ledgers", "removed", n)
		}
		s.reportActiveSessions(ctx, int64(s.enforcer.ActiveSessions()))
	}
}

// reportActiveSessions moves the up/down counter by the delta since the last
// sweep so the exported gauge tracks the live ledger count.
func (s *Sweeper) reportActiveSessions(ctx context.Context, active int64) {
	if s.metrics == nil {
		return
	}
	if delta := active - s.lastActive; delta != 0 {
		s.metrics.ActiveSessions.Add(ctx, delta)
	}
	s.lastActive = active
}
