// Package observe provides application-wide observability primitives for
// Sophia: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Sophia metrics.
const meterName = "github.com/introspect-ai/sophia"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChatTurnDuration tracks end-to-end chat turn latency, including engine
	// calls and summary persistence.
	ChatTurnDuration metric.Float64Histogram

	// EngineDuration tracks LLM engine invocation latency (reply completion
	// plus summary update).
	EngineDuration metric.Float64Histogram

	// --- Counters ---

	// ChatTurns counts completed chat turns. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ChatTurns metric.Int64Counter

	// EngineErrors counts engine/provider failures.
	EngineErrors metric.Int64Counter

	// Logins counts login requests. Use with attribute:
	//   attribute.String("outcome", "created"|"existing")
	Logins metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of live conversation handles.
	// Handles are never evicted, so this only goes up within one process.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Chat turns
// include up to two LLM round trips, so the upper buckets are generous.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChatTurnDuration, err = m.Float64Histogram("sophia.chat.turn.duration",
		metric.WithDescription("End-to-end latency of one chat turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EngineDuration, err = m.Float64Histogram("sophia.engine.duration",
		metric.WithDescription("Latency of conversation engine invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChatTurns, err = m.Int64Counter("sophia.chat.turns",
		metric.WithDescription("Total chat turns by status."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("sophia.engine.errors",
		metric.WithDescription("Total engine/provider failures."),
	); err != nil {
		return nil, err
	}
	if met.Logins, err = m.Int64Counter("sophia.logins",
		metric.WithDescription("Total login requests by outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("sophia.active_conversations",
		metric.WithDescription("Number of live conversation handles."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sophia.http.request.duration",
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

// RecordChatTurn records the completion of one chat turn with its status.
func (m *Metrics) RecordChatTurn(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ChatTurns.Add(ctx, 1, attrs)
	m.ChatTurnDuration.Record(ctx, seconds, attrs)
}

// RecordEngineError records an engine/provider failure.
func (m *Metrics) RecordEngineError(ctx context.Context) {
	m.EngineErrors.Add(ctx, 1)
}

// RecordLogin records a login request with its outcome ("created" for a
// first-time name, "existing" otherwise).
func (m *Metrics) RecordLogin(ctx context.Context, outcome string) {
	m.Logins.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
