// Package observe provides application-wide observability primitives for
// tutorcore: OpenTelemetry metrics, tracing helpers and structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tutorcore metrics.
const meterName = "github.com/lessonloop/tutorcore"

// Metrics holds all OpenTelemetry metric instruments for the decision layer.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// DecisionDuration tracks end-to-end decision latency.
	DecisionDuration metric.Float64Histogram

	// ClassificationDuration tracks intent classification latency, fast
	// path and fallback together.
	ClassificationDuration metric.Float64Histogram

	// CacheLookupDuration tracks response-cache lookup latency.
	CacheLookupDuration metric.Float64Histogram

	// --- Counters ---

	// Decisions counts decisions. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("action", ...)
	Decisions metric.Int64Counter

	// CacheLookups counts cache lookups. Use with attributes:
	//   attribute.String("scope", ...), attribute.String("result", "hit"|"miss"|"fuzzy")
	CacheLookups metric.Int64Counter

	// FallbackCalls counts LLM fallback calls. Use with attributes:
	//   attribute.String("kind", "intent"|"complexity"), attribute.String("status", ...)
	FallbackCalls metric.Int64Counter

	// TokenClamps counts decisions whose token budget was reduced by a
	// guardrail.
	TokenClamps metric.Int64Counter

	// RateLimited counts decisions degraded by the per-session rate limit.
	RateLimited metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks sessions with a live ledger.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The fast
// path resolves in microseconds; the fallback calls are bounded at a couple
// of seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecisionDuration, err = m.Float64Histogram("tutorcore.decision.duration",
		metric.WithDescription("End-to-end latency of one decision."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassificationDuration, err = m.Float64Histogram("tutorcore.intent.duration",
		metric.WithDescription("Latency of intent classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CacheLookupDuration, err = m.Float64Histogram("tutorcore.cache.lookup.duration",
		metric.WithDescription("Latency of response-cache lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Decisions, err = m.Int64Counter("tutorcore.decisions",
		metric.WithDescription("Total decisions by intent and action."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("tutorcore.cache.lookups",
		metric.WithDescription("Total cache lookups by scope and result."),
	); err != nil {
		return nil, err
	}
	if met.FallbackCalls, err = m.Int64Counter("tutorcore.fallback.calls",
		metric.WithDescription("Total LLM fallback calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.TokenClamps, err = m.Int64Counter("tutorcore.guardrail.token_clamps",
		metric.WithDescription("Total decisions with a guardrail-reduced token budget."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("tutorcore.guardrail.rate_limited",
		metric.WithDescription("Total decisions degraded by the per-session rate limit."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tutorcore.active_sessions",
		metric.WithDescription("Number of sessions with a live ledger."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDecision records one completed decision with its latency.
func (m *Metrics) RecordDecision(ctx context.Context, intentLabel, action string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("intent", intentLabel),
		attribute.String("action", action),
	)
	m.Decisions.Add(ctx, 1, attrs)
	m.DecisionDuration.Record(ctx, seconds, attrs)
}

// RecordCacheLookup records one cache lookup with its latency.
func (m *Metrics) RecordCacheLookup(ctx context.Context, scope, result string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("result", result),
	)
	m.CacheLookups.Add(ctx, 1, attrs)
	m.CacheLookupDuration.Record(ctx, seconds, attrs)
}

// RecordFallback records one LLM fallback call.
func (m *Metrics) RecordFallback(ctx context.Context, kind, status string) {
	m.FallbackCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordTokenClamp records a guardrail-reduced token budget.
func (m *Metrics) RecordTokenClamp(ctx context.Context) {
	m.TokenClamps.Add(ctx, 1)
}

// RecordRateLimited records a rate-limit-degraded decision.
func (m *Metrics) RecordRateLimited(ctx context.Context) {
	m.RateLimited.Add(ctx, 1)
}
