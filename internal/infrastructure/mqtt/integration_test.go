//go:build integration

package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ScanRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "stocky-int-roundtrip"

	client, err := Connect(cfg)
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // Test cleanup

	received := make(chan string, 1)
	err = client.Subscribe(Topics{}.AllScannerScans(), 1, func(topic string, payload []byte) error {
		device, _ := ParseScannerScanTopic(topic)
		received <- device + ":" + string(payload)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, client.Publish(Topics{}.ScannerScan("sk-int"), []byte("0123456789012"), 1, false))

	select {
	case got := <-received:
		assert.Equal(t, "sk-int:0123456789012", got)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for scan")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
