// Package observe provides application-wide observability primitives for
// Auricle: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/auricle-ai/auricle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks utterance-sealed to transcript-released
	// latency.
	TranscriptionDuration metric.Float64Histogram

	// AnswerDuration tracks question-dispatched to answer-terminal latency.
	AnswerDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts sealed speech utterances.
	Utterances metric.Int64Counter

	// Transcripts counts released transcripts. Use with attribute:
	//   attribute.String("status", "ok"|"failed")
	Transcripts metric.Int64Counter

	// Questions counts dispatched questions.
	Questions metric.Int64Counter

	// Answers counts terminal answers. Use with attribute:
	//   attribute.String("status", "complete"|"failed"|"cancelled")
	Answers metric.Int64Counter

	// FramesDropped counts capture frames discarded on ring overflow.
	FramesDropped metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ViewerClients tracks the number of connected viewer WebSocket clients.
	ViewerClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for the transcription and answer stages.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("auricle.transcription.duration",
		metric.WithDescription("Latency from utterance sealed to transcript released."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = m.Float64Histogram("auricle.answer.duration",
		metric.WithDescription("Latency from question dispatched to answer terminal."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("auricle.utterances",
		metric.WithDescription("Total sealed speech utterances."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("auricle.transcripts",
		metric.WithDescription("Total released transcripts by status."),
	); err != nil {
		return nil, err
	}
	if met.Questions, err = m.Int64Counter("auricle.questions",
		metric.WithDescription("Total dispatched questions."),
	); err != nil {
		return nil, err
	}
	if met.Answers, err = m.Int64Counter("auricle.answers",
		metric.WithDescription("Total terminal answers by status."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("auricle.frames.dropped",
		metric.WithDescription("Total capture frames discarded on ring overflow."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("auricle.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("auricle.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("auricle.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.ViewerClients, err = m.Int64UpDownCounter("auricle.viewer.clients",
		metric.WithDescription("Number of connected viewer WebSocket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("auricle.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
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

// RecordTranscript records one released transcript with its status.
func (m *Metrics) RecordTranscript(ctx context.Context, status string) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordAnswer records one terminal answer with its status.
func (m *Metrics) RecordAnswer(ctx context.Context, status string) {
	m.Answers.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
