// Package events records what the scanner workflow did.
//
// Every accepted transition, rejected scan and delivery attempt becomes an
// Event. The Emitter queues events and a single worker hands each one to
// every configured Sink in turn:
//
//   - LogSink writes a structured log line.
//   - AuditSink stores the event in the audit_logs table.
//   - MQTTSink publishes it on stocky/core/event/{type}.
//   - MetricsSink writes an InfluxDB point.
//
// Emit never blocks the caller. When the queue is full the event is
// dropped and counted.
package events
