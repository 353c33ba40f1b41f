// Package observe provides application-wide observability primitives for
// chordcoord: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chordcoord metrics.
const meterName = "github.com/MrWong99/chordcoord"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Real-time audio ---

	// PitchCycleDuration tracks the wall time of one detection cycle
	// (frame read plus estimate).
	PitchCycleDuration metric.Float64Histogram

	// PitchEstimates counts published estimates. Use with attribute:
	//   attribute.String("result", "pitch"|"none")
	PitchEstimates metric.Int64Counter

	// BeatsScheduled counts click events handed to the output graph. Use with
	// attribute:
	//   attribute.Bool("accent", ...)
	BeatsScheduled metric.Int64Counter

	// LateBeats counts beats whose audio time was already in the past when
	// they were scheduled (the driver woke up too late).
	LateBeats metric.Int64Counter

	// --- Collaborators ---

	// ChordRequests counts chord identifications. Use with attributes:
	//   attribute.String("source", "local"|"remote"), attribute.String("status", ...)
	ChordRequests metric.Int64Counter

	// LLMDuration tracks ask-a-teacher completion latency.
	LLMDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks live WebSocket audio sessions. Use with attribute:
	//   attribute.String("kind", "tuner"|"metronome")
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// cycleBuckets covers per-frame analysis time; one display frame is ~16.7ms.
var cycleBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PitchCycleDuration, err = m.Float64Histogram("chordcoord.pitch.cycle.duration",
		metric.WithDescription("Wall time of one pitch detection cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("chordcoord.llm.duration",
		metric.WithDescription("Latency of ask-a-teacher LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PitchEstimates, err = m.Int64Counter("chordcoord.pitch.estimates",
		metric.WithDescription("Total pitch estimates published by result."),
	); err != nil {
		return nil, err
	}
	if met.BeatsScheduled, err = m.Int64Counter("chordcoord.metronome.beats",
		metric.WithDescription("Total metronome clicks scheduled by accent."),
	); err != nil {
		return nil, err
	}
	if met.LateBeats, err = m.Int64Counter("chordcoord.metronome.late_beats",
		metric.WithDescription("Clicks scheduled after their audio time had passed."),
	); err != nil {
		return nil, err
	}
	if met.ChordRequests, err = m.Int64Counter("chordcoord.chord.requests",
		metric.WithDescription("Total chord identifications by source and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("chordcoord.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("chordcoord.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("chordcoord.active_streams",
		metric.WithDescription("Number of live WebSocket audio sessions by kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chordcoord.http.request.duration",
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

// RecordPitchEstimate counts one published estimate.
func (m *Metrics) RecordPitchEstimate(ctx context.Context, detected bool) {
	result := "none"
	if detected {
		result = "pitch"
	}
	m.PitchEstimates.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBeat counts one scheduled click and, if late, one late beat.
func (m *Metrics) RecordBeat(ctx context.Context, accent, late bool) {
	m.BeatsScheduled.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accent", accent)))
	if late {
		m.LateBeats.Add(ctx, 1)
	}
}

// RecordChordRequest counts one chord identification.
func (m *Metrics) RecordChordRequest(ctx context.Context, source, status string) {
	m.ChordRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// StreamOpened increments the active stream gauge for kind and returns a
// func that decrements it again.
func (m *Metrics) StreamOpened(ctx context.Context, kind string) (closed func()) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.ActiveStreams.Add(ctx, 1, attrs)
	var once sync.Once
	return func() {
		once.Do(func() { m.ActiveStreams.Add(context.WithoutCancel(ctx), -1, attrs) })
	}
}

// statusLabel renders an HTTP status code for metric attributes.
func statusLabel(code int) string {
	return strconv.Itoa(code)
}
