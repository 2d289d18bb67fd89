// Package telemetry wires OpenTelemetry tracing and metrics for Stocky Core.
//
// Init installs OTLP/gRPC exporters as the otel global providers; code
// elsewhere obtains tracers and meters through otel.Tracer and otel.Meter
// with InstrumentationName. With telemetry disabled the globals remain
// no-op, so instrumented code runs unchanged.
//
//	telemetry:
//	  enabled: true
//	  otlp_endpoint: "localhost:4317"
//	  sample_ratio: 0.25
package telemetry
