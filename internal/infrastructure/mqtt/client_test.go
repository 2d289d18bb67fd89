package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocky-app/stocky-core/internal/infrastructure/config"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                       { return !t.timeout }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls instead of talking to a broker.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	token        *fakeToken
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler), token: &fakeToken{}}
}

func (f *fakePaho) IsConnected() bool      { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	return f.token
}
func (f *fakePaho) Disconnect(_ uint) {
	f.mu.Lock()
	f.disconnected = true
	f.connected = false
	f.mu.Unlock()
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic, qos, retained, b})
	f.mu.Unlock()
	return f.token
}
func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.handlers[topic] = callback
	f.mu.Unlock()
	return f.token
}
func (f *fakePaho) SubscribeMultiple(_ map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	return f.token
}
func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	f.mu.Unlock()
	return f.token
}
func (f *fakePaho) AddRoute(_ string, _ pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) deliver(subscription, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[subscription]
	f.mu.Unlock()
	h(f, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker:  config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "stocky-test"},
		QoS:     1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fp := newFakePaho()
	return newClient(testConfig(), fp), fp
}

func TestPublish(t *testing.T) {
	c, fp := newTestClient(t)

	require.NoError(t, c.Publish("stocky/core/event/scan.accepted", []byte(`{}`), 1, false))
	require.Len(t, fp.published, 1)
	assert.Equal(t, "stocky/core/event/scan.accepted", fp.published[0].topic)
	assert.False(t, fp.published[0].retained)
}

func TestPublish_Validation(t *testing.T) {
	c, _ := newTestClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"too large", "t", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, c.Publish(tt.topic, tt.payload, tt.qos, false), tt.want)
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, fp := newTestClient(t)
	fp.connected = false

	assert.ErrorIs(t, c.Publish("t", nil, 0, false), ErrNotConnected)
}

func TestPublish_BrokerError(t *testing.T) {
	c, fp := newTestClient(t)

	fp.token = &fakeToken{err: errors.New("refused")}
	assert.ErrorIs(t, c.Publish("t", nil, 0, false), ErrPublishFailed)

	fp.token = &fakeToken{timeout: true}
	assert.ErrorIs(t, c.Publish("t", nil, 0, false), ErrPublishFailed)
}

func TestPublishJSON(t *testing.T) {
	c, fp := newTestClient(t)

	require.NoError(t, c.PublishJSON("t", map[string]string{"type": "scan.accepted"}))
	require.Len(t, fp.published, 1)
	assert.JSONEq(t, `{"type":"scan.accepted"}`, string(fp.published[0].payload))
	assert.Equal(t, byte(1), fp.published[0].qos)

	assert.ErrorIs(t, c.PublishJSON("t", make(chan int)), ErrPublishFailed)
}

func TestSubscribe_DeliversAndTracks(t *testing.T) {
	c, fp := newTestClient(t)

	var got []string
	err := c.Subscribe(Topics{}.AllScannerScans(), 1, func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, c.subscriptions, Topics{}.AllScannerScans())
	assert.Len(t, c.subscriptions, 1)

	fp.deliver(Topics{}.AllScannerScans(), "stocky/scanner/sk-abc/scan", []byte("0123456789012"))
	assert.Equal(t, []string{"stocky/scanner/sk-abc/scan=0123456789012"}, got)

	require.NoError(t, c.Unsubscribe(Topics{}.AllScannerScans()))
	assert.Empty(t, c.subscriptions)
	assert.Equal(t, []string{Topics{}.AllScannerScans()}, fp.unsubscribed)
}

func TestSubscribe_Validation(t *testing.T) {
	c, fp := newTestClient(t)
	noop := func(string, []byte) error { return nil }

	assert.ErrorIs(t, c.Subscribe("", 0, noop), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("t", 3, noop), ErrInvalidQoS)
	assert.ErrorIs(t, c.Subscribe("t", 0, nil), ErrSubscribeFailed)
	assert.ErrorIs(t, c.Unsubscribe(""), ErrInvalidTopic)

	fp.token = &fakeToken{err: errors.New("denied")}
	assert.ErrorIs(t, c.Subscribe("t", 0, noop), ErrSubscribeFailed)
	assert.NotContains(t, c.subscriptions, "t")

	fp.connected = false
	assert.ErrorIs(t, c.Subscribe("t", 0, noop), ErrNotConnected)
}

func TestWrapHandler_RecoversPanicAndLogsErrors(t *testing.T) {
	c, fp := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	require.NoError(t, c.Subscribe("panic", 0, func(string, []byte) error { panic("boom") }))
	require.NoError(t, c.Subscribe("fail", 0, func(string, []byte) error { return errors.New("bad scan") }))

	assert.NotPanics(t, func() { fp.deliver("panic", "panic", nil) })
	fp.deliver("fail", "fail", nil)

	assert.Equal(t, []string{"mqtt handler panic recovered"}, logger.errors)
	assert.Equal(t, []string{"mqtt handler returned error"}, logger.warns)
}

func TestConnectionCallbacks(t *testing.T) {
	c, fp := newTestClient(t)

	var connects int
	var lost error
	c.SetOnConnect(func() { connects++ })
	c.SetOnDisconnect(func(err error) { lost = err })

	require.NoError(t, c.Subscribe("a", 0, func(string, []byte) error { return nil }))
	fp.handlers = make(map[string]pahomqtt.MessageHandler)

	c.handleDisconnect(errors.New("network down"))
	assert.EqualError(t, lost, "network down")
	assert.False(t, c.IsConnected())

	c.handleConnect()
	assert.Equal(t, 1, connects)
	assert.True(t, c.IsConnected())
	assert.Contains(t, fp.handlers, "a", "subscriptions restored")

	last := fp.published[len(fp.published)-1]
	assert.Equal(t, Topics{}.SystemStatus(), last.topic)
	assert.True(t, last.retained)
}

func TestClose_PublishesOfflineStatus(t *testing.T) {
	c, fp := newTestClient(t)

	require.NoError(t, c.Close())
	assert.True(t, fp.disconnected)
	require.Len(t, fp.published, 1)

	var msg statusMessage
	require.NoError(t, json.Unmarshal(fp.published[0].payload, &msg))
	assert.Equal(t, "offline", msg.Status)
	assert.Equal(t, "graceful_shutdown", msg.Reason)
	assert.Equal(t, "stocky-test", msg.ClientID)

	var nilClient *Client
	assert.NoError(t, nilClient.Close())
}

func TestHealthCheck(t *testing.T) {
	c, fp := newTestClient(t)

	assert.NoError(t, c.HealthCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.HealthCheck(ctx), context.Canceled)

	fp.connected = false
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "stocky", Password: "secret"}

	opts := buildClientOptions(cfg)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://127.0.0.1:1883", opts.Servers[0].String())
	assert.Equal(t, "stocky", opts.Username)
	assert.Equal(t, "stocky-test", opts.ClientID)
	assert.True(t, opts.AutoReconnect)

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	assert.Equal(t, "ssl://127.0.0.1:1883", opts.Servers[0].String())
	require.NotNil(t, opts.TLSConfig)
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "stocky-test")

	assert.True(t, opts.WillEnabled)
	assert.Equal(t, Topics{}.SystemStatus(), opts.WillTopic)
	assert.True(t, opts.WillRetained)
	assert.Contains(t, string(opts.WillPayload), "unexpected_disconnect")
}
