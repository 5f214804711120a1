// Package observability provides an OpenTelemetry-based metrics
// extension. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for operation enqueue, poll, completion,
// failure, timeout, and clock maintenance events.
//
// For per-invocation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
