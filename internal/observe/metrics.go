// Package observe provides application-wide observability primitives for
// Sennet: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Sennet metrics.
const meterName = "github.com/attercap/sennet"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ListenDuration tracks how long one utterance capture took.
	ListenDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text transcription latency.
	TranscribeDuration metric.Float64Histogram

	// ThinkDuration tracks routing latency from utterance to reply text.
	ThinkDuration metric.Float64Histogram

	// SpeakDuration tracks text-to-speech synthesis plus playback latency.
	SpeakDuration metric.Float64Histogram

	// BrainDuration tracks heavyweight agent invocation latency.
	BrainDuration metric.Float64Histogram

	// LLMDuration tracks local model call latency.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// WakeEvents counts wake activations. Use with attribute:
	//   attribute.String("source", "voice"|"hotkey")
	WakeEvents metric.Int64Counter

	// Turns counts completed conversations. Use with attribute:
	//   attribute.String("outcome", "phrase"|"silence"|"error")
	Turns metric.Int64Counter

	// RouteDecisions counts think-path outcomes. Use with attributes:
	//   attribute.String("tier", "llm"|"knowledge"|"fast"|"brain"), attribute.String("status", ...)
	RouteDecisions metric.Int64Counter

	// PaneTransitions counts monitored window state changes. Use with
	// attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	PaneTransitions metric.Int64Counter

	// AlertsSpoken counts pane alerts actually voiced. Use with attribute:
	//   attribute.String("kind", "completion"|"error")
	AlertsSpoken metric.Int64Counter

	// BrainInvocations counts agent subprocess runs. Use with attributes:
	//   attribute.String("mode", "quick"|"full"), attribute.String("status", ...)
	BrainInvocations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// WatchedWindows tracks the number of tmux windows under the monitor.
	WatchedWindows metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies. The top buckets cover full-mode agent runs.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ListenDuration, err = m.Float64Histogram("sennet.listen.duration",
		metric.WithDescription("Latency of one utterance capture."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("sennet.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ThinkDuration, err = m.Float64Histogram("sennet.think.duration",
		metric.WithDescription("Latency from utterance text to reply text."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("sennet.speak.duration",
		metric.WithDescription("Latency of synthesis plus playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BrainDuration, err = m.Float64Histogram("sennet.brain.duration",
		metric.WithDescription("Latency of heavyweight agent invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("sennet.llm.duration",
		metric.WithDescription("Latency of local model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeEvents, err = m.Int64Counter("sennet.wake.events",
		metric.WithDescription("Total wake activations by source."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("sennet.turns",
		metric.WithDescription("Total completed conversations by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RouteDecisions, err = m.Int64Counter("sennet.route.decisions",
		metric.WithDescription("Total think-path decisions by tier and status."),
	); err != nil {
		return nil, err
	}
	if met.PaneTransitions, err = m.Int64Counter("sennet.pane.transitions",
		metric.WithDescription("Total monitored window state changes."),
	); err != nil {
		return nil, err
	}
	if met.AlertsSpoken, err = m.Int64Counter("sennet.alerts.spoken",
		metric.WithDescription("Total pane alerts voiced by kind."),
	); err != nil {
		return nil, err
	}
	if met.BrainInvocations, err = m.Int64Counter("sennet.brain.invocations",
		metric.WithDescription("Total agent subprocess runs by mode and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("sennet.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.WatchedWindows, err = m.Int64UpDownCounter("sennet.watched_windows",
		metric.WithDescription("Number of tmux windows under the pane monitor."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sennet.http.request.duration",
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

// RecordWake records a wake activation from the given source.
func (m *Metrics) RecordWake(ctx context.Context, source string) {
	m.WakeEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordTurn records a completed conversation with its outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordRoute records a think-path decision with the standard attribute set.
func (m *Metrics) RecordRoute(ctx context.Context, tier, status string) {
	m.RouteDecisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("status", status),
		),
	)
}

// RecordPaneTransition records one monitored window state change.
func (m *Metrics) RecordPaneTransition(ctx context.Context, from, to string) {
	m.PaneTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordAlert records a voiced pane alert.
func (m *Metrics) RecordAlert(ctx context.Context, kind string) {
	m.AlertsSpoken.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordBrainInvocation records one agent subprocess run.
func (m *Metrics) RecordBrainInvocation(ctx context.Context, mode, status string) {
	m.BrainInvocations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error with the standard attribute
// set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
