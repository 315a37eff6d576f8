// Package observe provides application-wide observability primitives for
// Hark: OpenTelemetry metrics, tracing helpers, and structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hark metrics.
const meterName = "github.com/openhark/hark"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognitionDuration tracks speech-to-text latency per engine. Use with
	// attribute.String("engine", ...).
	RecognitionDuration metric.Float64Histogram

	// EngineRequests counts engine invocations. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	EngineRequests metric.Int64Counter

	// EngineErrors counts failed engine invocations by engine.
	EngineErrors metric.Int64Counter

	// Escalations counts fallback-policy escalations. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	Escalations metric.Int64Counter

	// WakeDetections counts accepted wake phrases.
	WakeDetections metric.Int64Counter

	// CommandOutcomes counts finished command cycles. Use with attribute:
	//   attribute.String("outcome", "command"|"timeout"|"error")
	CommandOutcomes metric.Int64Counter

	// DroppedFrames counts capture frames dropped by queue overflow.
	DroppedFrames metric.Int64Counter

	// ActivePipelines tracks the number of running pipeline loops.
	ActivePipelines metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("hark.recognition.duration",
		metric.WithDescription("Latency of speech-to-text recognition per engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EngineRequests, err = m.Int64Counter("hark.engine.requests",
		metric.WithDescription("Total engine invocations by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("hark.engine.errors",
		metric.WithDescription("Total failed engine invocations by engine."),
	); err != nil {
		return nil, err
	}
	if met.Escalations, err = m.Int64Counter("hark.fallback.escalations",
		metric.WithDescription("Total fallback-policy escalations by source and target engine."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("hark.wake.detections",
		metric.WithDescription("Total accepted wake phrases."),
	); err != nil {
		return nil, err
	}
	if met.CommandOutcomes, err = m.Int64Counter("hark.command.outcomes",
		metric.WithDescription("Total finished command cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("hark.capture.dropped_frames",
		metric.WithDescription("Total capture frames dropped by queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.ActivePipelines, err = m.Int64UpDownCounter("hark.active_pipelines",
		metric.WithDescription("Number of running pipeline loops."),
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

// RecordRecognition records one engine invocation: its latency bucket, the
// request counter, and the error counter when the engine failed.
func (m *Metrics) RecordRecognition(ctx context.Context, engine string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
		m.EngineErrors.Add(ctx, 1, metric.WithAttributes(Attr("engine", engine)))
	}
	m.RecognitionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(Attr("engine", engine)))
	m.EngineRequests.Add(ctx, 1,
		metric.WithAttributes(
			Attr("engine", engine),
			Attr("status", status),
		),
	)
}

// RecordEscalation records one fallback hop between engines.
func (m *Metrics) RecordEscalation(ctx context.Context, from, to string) {
	if from == "" {
		from = "none"
	}
	m.Escalations.Add(ctx, 1,
		metric.WithAttributes(
			Attr("from", from),
			Attr("to", to),
		),
	)
}

// RecordCommandOutcome records the end of one command cycle.
func (m *Metrics) RecordCommandOutcome(ctx context.Context, outcome string) {
	m.CommandOutcomes.Add(ctx, 1,
		metric.WithAttributes(Attr("outcome", outcome)))
}
