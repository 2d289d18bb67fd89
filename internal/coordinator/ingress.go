package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stocky-app/stocky-core/internal/infrastructure/mqtt"
)

// ingressTimeout bounds one scan received over MQTT.
const ingressTimeout = 10 * time.Second

// mqttScan is the optional JSON envelope for scans published over MQTT.
type mqttScan struct {
	Raw string `json:"raw"`
}

// HandleMQTTScan is an mqtt.MessageHandler for stocky/scanner/{device_id}/scan.
// The payload is either the raw scan text or {"raw": "..."}.
func (c *Coordinator) HandleMQTTScan(topic string, payload []byte) error {
	deviceID, ok := mqtt.ParseScannerScanTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", mqtt.ErrInvalidTopic, topic)
	}

	raw := string(payload)
	var env mqttScan
	if strings.HasPrefix(strings.TrimSpace(raw), "{") && json.Unmarshal(payload, &env) == nil && env.Raw != "" {
		raw = env.Raw
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingressTimeout)
	defer cancel()

	res, err := c.HandleScan(ctx, deviceID, raw)
	if err != nil {
		return fmt.Errorf("handling mqtt scan: %w", err)
	}
	c.logger.Debug("mqtt scan handled", "outcome", res.Outcome)
	return nil
}
