// Package observe provides observability primitives for cache regions.
//
// It is a pure instrumentation library: a JSON structured logger, an
// OpenTelemetry tracer and meter, and an Instrumentation helper that wraps
// one region operation with a span, metrics and a log line.
package observe
