// Package observe provides application-wide observability primitives for
// SumireVox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and served by
// [MetricsHandler]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
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

// meterName is the instrumentation scope name used for all SumireVox metrics.
const meterName = "github.com/MrWong99/sumirevox"

// Status attribute values shared by all counters.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// DictionaryOps counts reconciler operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	DictionaryOps metric.Int64Counter

	// DictionaryDuration tracks reconciler operation latency, including all
	// remote round trips. Use with attribute:
	//   attribute.String("op", ...)
	DictionaryDuration metric.Float64Histogram

	// DictionaryFailedDeletes counts stale duplicates that could not be
	// removed during an upsert.
	DictionaryFailedDeletes metric.Int64Counter

	// SettingsOps counts settings store operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	SettingsOps metric.Int64Counter

	// SettingsRecovered counts stored guild settings fields, or whole
	// documents, that were unusable and replaced by defaults on read.
	SettingsRecovered metric.Int64Counter

	// VoicevoxRequests counts HTTP calls to the VOICEVOX engine. Use with
	// attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	VoicevoxRequests metric.Int64Counter

	// HTTPRequestDuration tracks admin HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for calls
// that span one or more round trips to the engine or the database.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DictionaryOps, err = m.Int64Counter("sumirevox.dictionary.ops",
		metric.WithDescription("Dictionary reconciler operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.DictionaryDuration, err = m.Float64Histogram("sumirevox.dictionary.duration",
		metric.WithDescription("Latency of dictionary reconciler operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DictionaryFailedDeletes, err = m.Int64Counter("sumirevox.dictionary.failed_deletes",
		metric.WithDescription("Stale dictionary duplicates that could not be deleted."),
	); err != nil {
		return nil, err
	}
	if met.SettingsOps, err = m.Int64Counter("sumirevox.settings.ops",
		metric.WithDescription("Guild settings store operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.SettingsRecovered, err = m.Int64Counter("sumirevox.settings.recovered",
		metric.WithDescription("Unusable stored guild settings replaced by defaults."),
	); err != nil {
		return nil, err
	}
	if met.VoicevoxRequests, err = m.Int64Counter("sumirevox.voicevox.requests",
		metric.WithDescription("VOICEVOX engine requests by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sumirevox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// Status maps an operation error to the status attribute value.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordDictionaryOp records one reconciler operation and its latency.
func (m *Metrics) RecordDictionaryOp(ctx context.Context, op string, err error, elapsed time.Duration) {
	m.DictionaryOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", Status(err)),
		),
	)
	m.DictionaryDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordSettingsOp records one settings store operation.
func (m *Metrics) RecordSettingsOp(ctx context.Context, op string, err error) {
	m.SettingsOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", Status(err)),
		),
	)
}

// RecordVoicevoxRequest records one HTTP call to the VOICEVOX engine.
func (m *Metrics) RecordVoicevoxRequest(ctx context.Context, endpoint, status string) {
	m.VoicevoxRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}
