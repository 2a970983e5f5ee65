// Package observe provides application-wide observability primitives for
// Friday: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the /metrics endpoint served by [MetricsHandler]. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Friday metrics.
const meterName = "github.com/MrWong99/friday"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks responder latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency across the fallback chain.
	TTSDuration metric.Float64Histogram

	// RecordingDuration tracks the length of captured utterances. Use with
	// attribute.String("reason", ...).
	RecordingDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// WakeDetections counts accepted wake phrases by matching tier.
	WakeDetections metric.Int64Counter

	// SynthesisDemotions counts fallback-chain demotions. Use with
	// attribute.String("from", ...), attribute.String("to", ...).
	SynthesisDemotions metric.Int64Counter

	// CircuitTransitions counts provider circuit-breaker state changes by
	// provider, kind and target state.
	CircuitTransitions metric.Int64Counter

	// PlaybackResults counts playback attempts by backend and status.
	PlaybackResults metric.Int64Counter

	// PipelineTransitions counts orchestrator state transitions.
	PipelineTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveCycles tracks conversation cycles in flight (0 or 1).
	ActiveCycles metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// recordingBuckets covers utterance lengths up to the default recording cap.
var recordingBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 7.5, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("friday.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("friday.llm.duration",
		metric.WithDescription("Latency of responder completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("friday.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("friday.recording.duration",
		metric.WithDescription("Length of captured utterances by end reason."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("friday.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("friday.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("friday.wake.detections",
		metric.WithDescription("Total accepted wake phrases by matching tier."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDemotions, err = m.Int64Counter("friday.synthesis.demotions",
		metric.WithDescription("Total synthesis fallback demotions by source and target mode."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("friday.provider.circuit_transitions",
		metric.WithDescription("Total provider circuit-breaker state changes."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackResults, err = m.Int64Counter("friday.playback.results",
		metric.WithDescription("Total playback attempts by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.PipelineTransitions, err = m.Int64Counter("friday.pipeline.transitions",
		metric.WithDescription("Total pipeline state transitions by source and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCycles, err = m.Int64UpDownCounter("friday.pipeline.active_cycles",
		metric.WithDescription("Number of conversation cycles in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("friday.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordWakeDetection counts an accepted wake phrase.
func (m *Metrics) RecordWakeDetection(ctx context.Context, tier string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordDemotion counts a synthesis chain demotion.
func (m *Metrics) RecordDemotion(ctx context.Context, from, to string) {
	m.SynthesisDemotions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordCircuitTransition counts a circuit-breaker state change for one
// provider of kind ("stt" or "llm").
func (m *Metrics) RecordCircuitTransition(ctx context.Context, provider, kind, from, to string) {
	m.CircuitTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordPlayback counts a playback attempt on backend.
func (m *Metrics) RecordPlayback(ctx context.Context, backend, status string) {
	m.PlaybackResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordTransition counts a pipeline state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.PipelineTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
