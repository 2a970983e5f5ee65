package observe

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Friday tracer.
const tracerName = "github.com/MrWong99/friday"

type correlationKey struct{}

// Tracer returns the package-level [trace.Tracer] for Friday. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// NewCorrelationID returns a fresh random correlation identifier.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a copy of ctx carrying id. Every log line written
// through [Logger] for that context is tagged with it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the identifier stored by [WithCorrelationID], falling
// back to the trace ID of the active span. Returns the empty string when
// neither is present.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx, plus correlation_id when one was attached.
// When neither is present, the returned logger is the default slog logger.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		l = l.With(slog.String("correlation_id", id))
	}
	return l
}
