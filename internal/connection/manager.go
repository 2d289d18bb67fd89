package connection

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Sender pushes bytes to one UI session. Send must not block on the
// network; implementations queue and return.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Delivery classifies the outcome of Send.
type Delivery int

// Delivery outcomes.
const (
	Delivered Delivery = iota
	NoSuchConnection
	SendFailed
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case NoSuchConnection:
		return "no_such_connection"
	case SendFailed:
		return "send_failed"
	default:
		return fmt.Sprintf("Delivery(%d)", int(d))
	}
}

// Info describes a live connection.
type Info struct {
	UIInstanceID string    `json:"ui_instance_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

type conn struct {
	sender      Sender
	connectedAt time.Time
}

// Manager maps UI instance ids to their live Sender.
//
// The lock is never held while calling into a Sender.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*conn

	logger Logger
	now    func() time.Time

	onOpen  func(uiID string)
	onClose func(uiID string, reason string)
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		conns:  make(map[string]*conn),
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetOnOpen sets a callback invoked after a connection is registered.
func (m *Manager) SetOnOpen(fn func(uiID string)) {
	m.onOpen = fn
}

// SetOnClose sets a callback invoked after a connection is removed. reason
// is one of "disconnected", "superseded", "send_failed" or "shutdown".
func (m *Manager) SetOnClose(fn func(uiID string, reason string)) {
	m.onClose = fn
}

// Close reasons passed to the OnClose callback.
const (
	ReasonDisconnected = "disconnected"
	ReasonSuperseded   = "superseded"
	ReasonSendFailed   = "send_failed"
	ReasonShutdown     = "shutdown"
)

// Register installs sender for uiID. A previous sender for the same id is
// replaced and closed.
func (m *Manager) Register(uiID string, sender Sender) error {
	if uiID == "" {
		return ErrInvalidUIInstanceID
	}
	if sender == nil {
		return ErrNilSender
	}

	m.mu.Lock()
	prev := m.conns[uiID]
	m.conns[uiID] = &conn{sender: sender, connectedAt: m.now()}
	m.mu.Unlock()

	if prev != nil {
		m.logger.Info("ui connection superseded", "ui_instance_id", uiID)
		m.closeSender(uiID, prev.sender)
		m.notifyClose(uiID, ReasonSuperseded)
	}

	m.logger.Debug("ui connection registered", "ui_instance_id", uiID, "connections", m.Count())
	if m.onOpen != nil {
		m.onOpen(uiID)
	}
	return nil
}

// Unregister removes uiID only if sender is still its current handle, so a
// superseded connection shutting down cannot evict its replacement. It
// reports whether an entry was removed. The sender is not closed; the
// caller owns its own shutdown.
func (m *Manager) Unregister(uiID string, sender Sender) bool {
	m.mu.Lock()
	c, ok := m.conns[uiID]
	if !ok || c.sender != sender {
		m.mu.Unlock()
		return false
	}
	delete(m.conns, uiID)
	m.mu.Unlock()

	m.logger.Debug("ui connection unregistered", "ui_instance_id", uiID, "connections", m.Count())
	m.notifyClose(uiID, ReasonDisconnected)
	return true
}

// Send marshals msg to JSON and hands it to uiID's sender. A failed send
// removes and closes that sender.
func (m *Manager) Send(uiID string, msg any) Delivery {
	m.mu.RLock()
	c, ok := m.conns[uiID]
	m.mu.RUnlock()
	if !ok {
		return NoSuchConnection
	}

	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("failed to marshal push message", "ui_instance_id", uiID, "error", err)
		return SendFailed
	}

	if err := c.sender.Send(data); err != nil {
		m.logger.Warn("push to ui failed", "ui_instance_id", uiID, "error", err)
		m.drop(uiID, c)
		return SendFailed
	}
	return Delivered
}

// drop removes c if it is still current and closes it.
func (m *Manager) drop(uiID string, c *conn) {
	m.mu.Lock()
	cur, ok := m.conns[uiID]
	removed := ok && cur == c
	if removed {
		delete(m.conns, uiID)
	}
	m.mu.Unlock()

	if removed {
		m.closeSender(uiID, c.sender)
		m.notifyClose(uiID, ReasonSendFailed)
	}
}

// Connections returns a snapshot of live connections ordered by id.
func (m *Manager) Connections() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.conns))
	for id, c := range m.conns {
		out = append(out, Info{UIInstanceID: id, ConnectedAt: c.connectedAt})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UIInstanceID < out[j].UIInstanceID
	})
	return out
}

// Connected reports whether uiID has a live connection.
func (m *Manager) Connected(uiID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[uiID]
	return ok
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// CloseAll closes and removes every connection.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*conn)
	m.mu.Unlock()

	for id, c := range conns {
		m.closeSender(id, c.sender)
		m.notifyClose(id, ReasonShutdown)
	}
	if len(conns) > 0 {
		m.logger.Info("ui connections closed", "count", len(conns))
	}
}

func (m *Manager) closeSender(uiID string, s Sender) {
	if err := s.Close(); err != nil {
		m.logger.Debug("closing ui sender", "ui_instance_id", uiID, "error", err)
	}
}

func (m *Manager) notifyClose(uiID, reason string) {
	if m.onClose != nil {
		m.onClose(uiID, reason)
	}
}
