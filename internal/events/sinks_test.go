package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocky-app/stocky-core/internal/audit"
	"github.com/stocky-app/stocky-core/internal/infrastructure/config"
	"github.com/stocky-app/stocky-core/internal/infrastructure/database"
	"github.com/stocky-app/stocky-core/internal/infrastructure/influxdb"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
	_ "github.com/stocky-app/stocky-core/migrations"
)

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level, msg, args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func sampleEvent() Event {
	return Event{
		ID:           "evt-1",
		Type:         TypeDeliveryAttempted,
		DeviceID:     "sk-abcdefgh",
		UIInstanceID: "ui-7",
		Outcome:      "command_delivered",
		Details:      map[string]any{"action": "show_view"},
		Timestamp:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}.WithVersion(2)
}

func TestLogSink(t *testing.T) {
	logger := &captureLogger{}
	sink := NewLogSink(logger)

	require.NoError(t, sink.Write(context.Background(), sampleEvent()))
	require.NoError(t, sink.Write(context.Background(), Event{Type: TypeScanRejected, DeviceID: "sk-abc"}))

	require.Len(t, logger.lines, 2)
	assert.Equal(t, "info", logger.lines[0].level)
	assert.Contains(t, logger.lines[0].args, "ui-7")
	assert.Contains(t, logger.lines[0].args, "show_view")
	assert.NotContains(t, logger.lines[0].args, "sk-abcdefgh", "device ids are redacted")
	assert.Equal(t, "warn", logger.lines[1].level)
}

func TestAuditSink(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "events.db"), BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	repo := audit.NewSQLiteRepository(db.DB)
	sink := NewAuditSink(repo)
	require.NoError(t, sink.Write(ctx, sampleEvent()))

	res, err := repo.List(ctx, audit.Filter{DeviceID: logging.DeviceRef("sk-abcdefgh")})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	got := res.Entries[0]
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, logging.DeviceRef("sk-abcdefgh"), got.DeviceID)
	assert.Equal(t, TypeDeliveryAttempted, got.EventType)
	assert.Equal(t, "ui-7", got.UIInstanceID)
	assert.Equal(t, "command_delivered", got.Outcome)
	require.NotNil(t, got.Version)
	assert.Equal(t, uint64(2), *got.Version)
	assert.Equal(t, "show_view", got.Details["action"])
}

type fakePublisher struct {
	topic string
	value any
	err   error
}

func (p *fakePublisher) PublishJSON(topic string, v any) error {
	p.topic = topic
	p.value = v
	return p.err
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub)

	e := sampleEvent()
	require.NoError(t, sink.Write(context.Background(), e))
	assert.Equal(t, "stocky/core/event/delivery.attempted", pub.topic)
	want := e
	want.DeviceID = logging.DeviceRef(e.DeviceID)
	assert.Equal(t, want, pub.value)
	assert.Equal(t, "sk-abcdefgh", e.DeviceID, "caller's event is untouched")

	pub.err = errors.New("not connected")
	assert.Error(t, sink.Write(context.Background(), e))
}

type fakePointWriter struct {
	points []influxdb.ScannerEventPoint
}

func (w *fakePointWriter) WriteScannerEvent(p influxdb.ScannerEventPoint) {
	w.points = append(w.points, p)
}

func TestMetricsSink(t *testing.T) {
	w := &fakePointWriter{}
	sink := NewMetricsSink(w)

	require.NoError(t, sink.Write(context.Background(), sampleEvent()))
	require.NoError(t, sink.Write(context.Background(), Event{Type: TypeScanRejected, DeviceID: "sk-x"}))

	require.Len(t, w.points, 2)
	assert.Equal(t, influxdb.ScannerEventPoint{
		DeviceID:  logging.DeviceRef("sk-abcdefgh"),
		EventType: TypeDeliveryAttempted,
		Outcome:   "command_delivered",
		Version:   2,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}, w.points[0])
	assert.Zero(t, w.points[1].Version)
}

func TestSinks_NeverExportRawKey(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "events.db"), BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	const key = "sk-live-0123456789abcdef"
	e := Event{ID: "evt-9", Type: TypeScanAccepted, DeviceID: key, Timestamp: time.Now().UTC()}

	repo := audit.NewSQLiteRepository(db.DB)
	require.NoError(t, NewAuditSink(repo).Write(ctx, e))
	pub := &fakePublisher{}
	require.NoError(t, NewMQTTSink(pub).Write(ctx, e))
	w := &fakePointWriter{}
	require.NoError(t, NewMetricsSink(w).Write(ctx, e))

	res, err := repo.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.NotContains(t, res.Entries[0].DeviceID, key)

	payload, err := json.Marshal(pub.value)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), key)
	assert.NotContains(t, string(payload), logging.RedactKey(key))

	require.Len(t, w.points, 1)
	assert.NotContains(t, w.points[0].DeviceID, key)

	// All three agree, so per-device filtering lines up across sinks.
	ref := logging.DeviceRef(key)
	assert.Equal(t, ref, res.Entries[0].DeviceID)
	assert.Equal(t, ref, w.points[0].DeviceID)
	assert.Contains(t, string(payload), ref)
}
