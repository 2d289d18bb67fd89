package mqtt

import "strings"

// Topic prefixes for the Stocky MQTT hierarchy.
const (
	TopicPrefix = "stocky"

	TopicPrefixCore = TopicPrefix + "/core"

	TopicPrefixSystem = TopicPrefix + "/system"

	TopicPrefixScanner = TopicPrefix + "/scanner"
)

// Topics builds Stocky MQTT topic names.
//
//	topics := mqtt.Topics{}
//	topics.CoreEvent("scan.accepted") // "stocky/core/event/scan.accepted"
type Topics struct{}

// SystemStatus is the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// CoreEvent is the topic a scanner event of the given type is published on.
func (Topics) CoreEvent(eventType string) string {
	return TopicPrefixCore + "/event/" + eventType
}

// ScannerScan is where an MQTT-capable scanner publishes its raw scans.
func (Topics) ScannerScan(deviceID string) string {
	return TopicPrefixScanner + "/" + deviceID + "/scan"
}

// AllScannerScans matches scans from every device.
func (Topics) AllScannerScans() string {
	return TopicPrefixScanner + "/+/scan"
}

// ParseScannerScanTopic extracts the device id from a ScannerScan topic.
func ParseScannerScanTopic(topic string) (deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixScanner+"/")
	if !found {
		return "", false
	}
	deviceID, found = strings.CutSuffix(rest, "/scan")
	if !found || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}
