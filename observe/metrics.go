package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Eviction reasons reported through RecordEviction.
const (
	EvictIdle    = "idle"    // idle timeout elapsed
	EvictMissing = "missing" // indexed key no longer in the store
	EvictCorrupt = "corrupt" // payload could not be decoded
	EvictLife    = "life"    // lifetime ceiling reached on refresh
)

// Metrics records cache region metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOp records one operation with its duration and error status.
	RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordLookup records a hit or miss of a read.
	RecordLookup(ctx context.Context, region string, hit bool)

	// RecordEviction records an entry dropped by the region itself.
	RecordEviction(ctx context.Context, region string, reason string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	totalCount    metric.Int64Counter
	errorCount    metric.Int64Counter
	durationHist  metric.Float64Histogram
	lookupCount   metric.Int64Counter
	evictionCount metric.Int64Counter
}

// NewMetrics creates the cache instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"cache.ops.total",
		metric.WithDescription("Total number of cache region operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"cache.ops.errors",
		metric.WithDescription("Total number of failed cache region operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"cache.ops.duration_ms",
		metric.WithDescription("Cache region operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lookupCount, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache reads by result (hit or miss)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	evictionCount, err := meter.Int64Counter(
		"cache.evictions",
		metric.WithDescription("Entries dropped by the region, by reason"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:    totalCount,
		errorCount:    errorCount,
		durationHist:  durationHist,
		lookupCount:   lookupCount,
		evictionCount: evictionCount,
	}, nil
}

// RecordOp records metrics for one operation.
func (m *metricsImpl) RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// RecordLookup records a hit or a miss.
func (m *metricsImpl) RecordLookup(ctx context.Context, region string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.region", region),
		attribute.String("cache.result", result),
	))
}

// RecordEviction records an entry dropped by the region.
func (m *metricsImpl) RecordEviction(ctx context.Context, region string, reason string) {
	m.evictionCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.region", region),
		attribute.String("cache.reason", reason),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordOp(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
}
func (m *noopMetrics) RecordLookup(ctx context.Context, region string, hit bool)        {}
func (m *noopMetrics) RecordEviction(ctx context.Context, region string, reason string) {}
