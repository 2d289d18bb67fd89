package events

import (
	"context"
	"fmt"

	"github.com/stocky-app/stocky-core/internal/audit"
	"github.com/stocky-app/stocky-core/internal/infrastructure/influxdb"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
	"github.com/stocky-app/stocky-core/internal/infrastructure/mqtt"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name implements Sink.
func (*LogSink) Name() string { return "log" }

// Write implements Sink. Rejected scans and failed deliveries log at warn.
func (s *LogSink) Write(_ context.Context, e Event) error {
	args := []any{
		"event_id", e.ID,
		"type", e.Type,
		"device_id", logging.RedactKey(e.DeviceID),
	}
	if e.UIInstanceID != "" {
		args = append(args, "ui_instance_id", e.UIInstanceID)
	}
	if e.Outcome != "" {
		args = append(args, "outcome", e.Outcome)
	}
	if e.Version != nil {
		args = append(args, "version", *e.Version)
	}
	for k, v := range e.Details {
		args = append(args, k, v)
	}

	switch {
	case e.Type == TypeScanRejected, e.Outcome == "send_failed":
		s.logger.Warn("scanner event", args...)
	default:
		s.logger.Info("scanner event", args...)
	}
	return nil
}

// AuditSink stores events in the audit trail. Device ids are recorded as
// logging.DeviceRef references, never as raw keys.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates an audit sink.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Name implements Sink.
func (*AuditSink) Name() string { return "audit" }

// Write implements Sink.
func (s *AuditSink) Write(ctx context.Context, e Event) error {
	entry := &audit.Entry{
		ID:           e.ID,
		EventType:    e.Type,
		DeviceID:     logging.DeviceRef(e.DeviceID),
		UIInstanceID: e.UIInstanceID,
		Outcome:      e.Outcome,
		Version:      e.Version,
		Details:      e.Details,
		CreatedAt:    e.Timestamp,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Publisher is the subset of the MQTT client used by MQTTSink.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes events on the core event topics.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (*MQTTSink) Name() string { return "mqtt" }

// Write implements Sink. The published copy carries a device reference in
// place of the key.
func (s *MQTTSink) Write(_ context.Context, e Event) error {
	e.DeviceID = logging.DeviceRef(e.DeviceID)
	return s.pub.PublishJSON(mqtt.Topics{}.CoreEvent(e.Type), e)
}

// PointWriter is the subset of the InfluxDB client used by MetricsSink.
type PointWriter interface {
	WriteScannerEvent(p influxdb.ScannerEventPoint)
}

// MetricsSink writes events as time-series points.
type MetricsSink struct {
	w PointWriter
}

// NewMetricsSink creates a metrics sink.
func NewMetricsSink(w PointWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// Name implements Sink.
func (*MetricsSink) Name() string { return "metrics" }

// Write implements Sink. Points are batched by the client, so this never
// fails.
func (s *MetricsSink) Write(_ context.Context, e Event) error {
	p := influxdb.ScannerEventPoint{
		DeviceID:  logging.DeviceRef(e.DeviceID),
		EventType: e.Type,
		Outcome:   e.Outcome,
		Timestamp: e.Timestamp,
	}
	if e.Version != nil {
		p.Version = *e.Version
	}
	s.w.WriteScannerEvent(p)
	return nil
}
