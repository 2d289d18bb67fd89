// Package mqtt provides MQTT connectivity for Stocky Core.
//
// The broker is optional. When enabled it carries:
//   - Scanner events, published to stocky/core/event/{type}
//   - Raw scans from MQTT-capable scanners, read from
//     stocky/scanner/{device_id}/scan
//   - Retained core status on stocky/system/status, with a last will so
//     subscribers see an unexpected disconnect
//
// The client reconnects with exponential backoff and restores its
// subscriptions after each reconnect. Handler panics are recovered and
// logged.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.CoreEvent("scan.accepted"), event)
package mqtt
