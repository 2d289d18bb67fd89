package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stocky-app/stocky-core/internal/connection"
	"github.com/stocky-app/stocky-core/internal/infrastructure/config"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
)

// WebSocket message types a UI may send.
const (
	WSTypePing = "ping"
	WSTypePong = "pong"

	// defaultSendBuffer is used when websocket.send_buffer is unset.
	defaultSendBuffer = 64
)

// WSMessage is a control message from a UI. Pushes to the UI use
// protocol.PushMessage instead.
type WSMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsSender is the connection.Sender for one WebSocket. Send queues onto a
// bounded buffer drained by writePump; it never touches the socket.
type wsSender struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	uiID   string
	logger *logging.Logger
}

func newWSSender(conn *websocket.Conn, uiID string, buffer int, logger *logging.Logger) *wsSender {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &wsSender{
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		uiID:   uiID,
		logger: logger,
	}
}

// Send implements connection.Sender.
func (c *wsSender) Send(data []byte) error {
	select {
	case <-c.done:
		return connection.ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return connection.ErrClosed
	default:
		return connection.ErrSendBufferFull
	}
}

// Close implements connection.Sender. It stops writePump, which closes the
// socket. Safe to call more than once.
func (c *wsSender) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// handleWebSocket upgrades the HTTP connection and registers it under the
// ui_instance_id query parameter. A second connection with the same id
// supersedes the first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	uiID := r.URL.Query().Get("ui_instance_id")
	if uiID == "" {
		writeBadRequest(w, "ui_instance_id query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sender := newWSSender(conn, uiID, s.wsCfg.SendBuffer, s.logger.With("ui_instance_id", uiID))
	if err := s.connections.Register(uiID, sender); err != nil {
		s.logger.Error("registering ui connection failed", "ui_instance_id", uiID, "error", err)
		conn.Close()
		return
	}
	s.logger.Info("ui connected", "ui_instance_id", uiID, "connections", s.connections.Count())

	go sender.writePump(s.wsCfg)
	go func() {
		sender.readPump(s.wsCfg)
		if s.connections.Unregister(uiID, sender) {
			s.logger.Info("ui disconnected", "ui_instance_id", uiID)
		}
		sender.Close() //nolint:errcheck // always nil
	}()
}

// readPump reads control messages until the socket fails or is closed.
func (c *wsSender) readPump(cfg config.WebSocketConfig) {
	defer c.conn.Close()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued pushes and keepalive pings.
func (c *wsSender) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	for {
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.Close() //nolint:errcheck // always nil
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close() //nolint:errcheck // always nil
				return
			}
		}
	}
}

// handleMessage answers application-level pings. Other messages are
// ignored; UIs only receive on this socket.
func (c *wsSender) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("ignoring non-JSON websocket message")
		return
	}
	if msg.Type != WSTypePing {
		return
	}
	reply, err := json.Marshal(WSMessage{Type: WSTypePong, ID: msg.ID})
	if err != nil {
		return
	}
	if err := c.Send(reply); err != nil {
		c.logger.Debug("pong dropped", "error", err)
	}
}
