package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every span this module emits.
const tracerName = "github.com/lessonloop/tutorcore"

// StartSpan opens a span on the globally registered tracer provider. The
// caller must end the returned span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// WithTrace annotates log with the trace and span IDs of the active span in
// ctx, so decision log lines can be joined to their traces. Without an active
// span it returns log unchanged.
func WithTrace(ctx context.Context, log *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return log
	}
	return log.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
