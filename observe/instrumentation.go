package observe

import (
	"context"
	"time"
)

// Instrumentation wraps region operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is passed to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation combines the given components. Nil components are
// replaced with no-ops.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrumentation{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopInstrumentation returns an Instrumentation that records nothing.
func NopInstrumentation() *Instrumentation {
	return NewInstrumentation(nil, nil, nil)
}

// InstrumentationFromObserver builds an Instrumentation from an Observer.
func InstrumentationFromObserver(obs Observer) (*Instrumentation, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrumentation(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the instrumentation logger.
func (in *Instrumentation) Logger() Logger {
	return in.logger
}

// Metrics returns the instrumentation metrics.
func (in *Instrumentation) Metrics() Metrics {
	return in.metrics
}

// Observe runs fn inside a span for meta and records its outcome.
func (in *Instrumentation) Observe(ctx context.Context, meta OpMeta, fn func(ctx context.Context) error) error {
	ctx, span := in.tracer.StartSpan(ctx, meta)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	in.tracer.EndSpan(span, err)
	in.metrics.RecordOp(ctx, meta, duration, err)

	if err != nil {
		in.logger.WithRegion(meta.Region).Error(ctx, "cache operation failed",
			Field{Key: "cache.op", Value: meta.Op},
			Field{Key: "duration_ms", Value: float64(duration.Milliseconds())},
			Field{Key: "error", Value: err.Error()},
		)
	}
	return err
}
