// Package influxdb records scanner activity as time-series data.
//
// It wraps the official influxdb-client-go v2 library. Each scanner event
// becomes a point in the scanner_events measurement, tagged by device,
// event type and outcome, so dashboards can chart scan throughput,
// rejection rates and delivery failures per scanner.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteScannerEvent(influxdb.ScannerEventPoint{DeviceID: "dev_8c1f0a2b9d3e4f57", EventType: "scan.accepted"})
//
// Writes are non-blocking and batched (batch_size, flush_interval).
package influxdb
