package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementScannerEvents is the measurement scanner events are written to.
const MeasurementScannerEvents = "scanner_events"

// ScannerEventPoint is one scanner event as a time-series point.
type ScannerEventPoint struct {
	DeviceID  string // device reference, never the raw API key
	EventType string
	Outcome   string
	Version   uint64
	Timestamp time.Time
}

// WriteScannerEvent queues a scanner event. Tags are device_id, event_type
// and outcome (when set); fields are count=1 and, for state changes, the
// resulting version. A zero Timestamp means now.
//
// Example:
//
//	client.WriteScannerEvent(influxdb.ScannerEventPoint{
//	    DeviceID:  "dev_8c1f0a2b9d3e4f57",
//	    EventType: "scan.accepted",
//	    Outcome:   "item_resolution",
//	})
func (c *Client) WriteScannerEvent(p ScannerEventPoint) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":  p.DeviceID,
		"event_type": p.EventType,
	}
	if p.Outcome != "" {
		tags["outcome"] = p.Outcome
	}

	fields := map[string]any{"count": int64(1)}
	if p.Version > 0 {
		fields["version"] = int64(p.Version) //nolint:gosec // versions stay far below 2^63
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(MeasurementScannerEvents, tags, fields, ts))
}
