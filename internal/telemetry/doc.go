// Package telemetry provides OpenTelemetry instrumentation for repaird.
//
// It owns the tracer provider and its OTLP gRPC exporter. Telemetry
// failures never crash the daemon; the instance degrades to no-op
// tracers instead. Metrics are exposed separately through the
// prometheus /metrics endpoint.
package telemetry
