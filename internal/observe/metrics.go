// Package observe provides application-wide observability primitives for the
// context engine: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all context-engine
// metrics.
const meterName = "github.com/causalfractal/contextengine"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks end-to-end HandleTurn latency, from the security
	// check through the last streamed chunk leaving the orchestrator.
	TurnDuration metric.Float64Histogram

	// RetrievalDuration tracks vector index query latency.
	RetrievalDuration metric.Float64Histogram

	// CausalFilterDuration tracks causal-graph chunk verification latency.
	CausalFilterDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// CoarseGrainDuration tracks the latency of a single coarse-graining
	// (node summarization) operation.
	CoarseGrainDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// TurnsTotal counts completed chat turns by outcome. Use with attributes:
	//   attribute.String("status", ...)
	TurnsTotal metric.Int64Counter

	// SecurityRejections counts inputs rejected by the security checker.
	// Use with attributes:
	//   attribute.String("reason", ...) ("sql_injection" or "prompt_injection")
	SecurityRejections metric.Int64Counter

	// CoarseGrainOperations counts coarse-graining runs by outcome. Use with
	// attributes:
	//   attribute.String("status", ...)
	CoarseGrainOperations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of sessions with an in-flight turn.
	ActiveSessions metric.Int64UpDownCounter

	// CoarseGrainQueueDepth tracks the number of nodes currently queued for
	// coarse-graining.
	CoarseGrainQueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// sub-second retrieval/filter operations up to multi-second LLM completions.
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
	if met.TurnDuration, err = m.Float64Histogram("contextengine.turn.duration",
		metric.WithDescription("End-to-end latency of a chat turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("contextengine.retrieval.duration",
		metric.WithDescription("Latency of vector index retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CausalFilterDuration, err = m.Float64Histogram("contextengine.causal_filter.duration",
		metric.WithDescription("Latency of causal-graph chunk verification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("contextengine.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoarseGrainDuration, err = m.Float64Histogram("contextengine.coarse_grain.duration",
		metric.WithDescription("Latency of a single coarse-graining operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("contextengine.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.TurnsTotal, err = m.Int64Counter("contextengine.turns.total",
		metric.WithDescription("Total chat turns handled, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SecurityRejections, err = m.Int64Counter("contextengine.security.rejections",
		metric.WithDescription("Total inputs rejected by the security checker, by reason."),
	); err != nil {
		return nil, err
	}
	if met.CoarseGrainOperations, err = m.Int64Counter("contextengine.coarse_grain.operations",
		metric.WithDescription("Total coarse-graining operations, by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("contextengine.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("contextengine.active_sessions",
		metric.WithDescription("Number of sessions with an in-flight turn."),
	); err != nil {
		return nil, err
	}
	if met.CoarseGrainQueueDepth, err = m.Int64UpDownCounter("contextengine.coarse_grain.queue_depth",
		metric.WithDescription("Number of nodes currently queued for coarse-graining."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("contextengine.http.request.duration",
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

// RecordTurn is a convenience method that records a completed chat turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.TurnsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSecurityRejection is a convenience method that records an input
// rejected by the security checker.
func (m *Metrics) RecordSecurityRejection(ctx context.Context, reason string) {
	m.SecurityRejections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordCoarseGrainOperation is a convenience method that records a
// coarse-graining run outcome.
func (m *Metrics) RecordCoarseGrainOperation(ctx context.Context, status string) {
	m.CoarseGrainOperations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
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
