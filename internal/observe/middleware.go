package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the correlation ID on requests and responses.
const CorrelationHeader = "X-Correlation-ID"

// routeOther labels requests for paths the service does not serve, so that
// scanners cannot blow up metric cardinality.
const routeOther = "other"

// routes maps the served paths to their log level. Probes and scrapes arrive
// every few seconds and only log at debug.
var routes = map[string]slog.Level{
	"/healthz": slog.LevelDebug,
	"/readyz":  slog.LevelDebug,
	"/metrics": slog.LevelDebug,
	"/status":  slog.LevelInfo,
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// routeOf returns the metric label and log level for a request path.
func routeOf(path string) (string, slog.Level) {
	if lvl, ok := routes[path]; ok {
		return path, lvl
	}
	return routeOther, slog.LevelInfo
}

// Middleware instruments the health, status and metrics endpoints. Each
// request gets a server span continuing any W3C trace context, a correlation
// ID (taken from the [CorrelationHeader] request header or the trace ID)
// echoed in the response, a sample in [Metrics.HTTPRequestDuration] labelled
// by route, and one log line on completion.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route, level := routeOf(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if id := r.Header.Get(CorrelationHeader); id != "" {
				ctx = WithCorrelationID(ctx, id)
			}
			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", route),
					attribute.Int("status", rec.statusCode),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))

			Logger(ctx).LogAttrs(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
