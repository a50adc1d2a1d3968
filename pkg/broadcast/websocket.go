package broadcast

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	controlBuffer  = 16

	ErrCodeInvalidScope   = "invalid_scope"
	ErrCodeInvalidMessage = "invalid_message"
)

// ClientMessage is sent by subscribers.
type ClientMessage struct {
	Type  string `json:"type"` // subscribe, unsubscribe, ping
	Scope string `json:"scope,omitempty"`
}

// ServerMessage is sent to subscribers. Event is set for type "event".
type ServerMessage struct {
	Type    string        `json:"type"` // event, pong, subscribed, unsubscribed, error
	Event   *models.Event `json:"event,omitempty"`
	Scope   string        `json:"scope,omitempty"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
}

// WebSocketHandler serves the subscription protocol over websockets.
type WebSocketHandler struct {
	mgr          *Manager
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewWebSocketHandler accepts any origin when allowedOrigins is empty.
func NewWebSocketHandler(mgr *Manager, allowedOrigins []string, writeTimeout time.Duration, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}

	return &WebSocketHandler{
		mgr:          mgr,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}

				_, ok := allowed[strings.TrimSuffix(r.Header.Get("Origin"), "/")]

				return ok
			},
		},
	}
}

type wsClient struct {
	h    *WebSocketHandler
	ws   *websocket.Conn
	conn *Conn
	ctrl chan ServerMessage
	log  *zap.Logger
}

// ServeHTTP upgrades the request. The optional "user" query parameter
// subscribes the connection to its user scope; repeated "scope"
// parameters subscribe up front.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var initial []Scope

	for _, raw := range r.URL.Query()["scope"] {
		s, err := ParseScope(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		initial = append(initial, s)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()

	conn, err := h.mgr.Register(connID, r.URL.Query().Get("user"))
	if err != nil {
		_ = ws.Close()
		return
	}

	for _, s := range initial {
		_ = h.mgr.Subscribe(connID, s)
	}

	c := &wsClient{
		h:    h,
		ws:   ws,
		conn: conn,
		ctrl: make(chan ServerMessage, controlBuffer),
		log:  h.logger.With(zap.String("conn_id", connID)),
	}

	c.log.Info("websocket connected", zap.String("remote", r.RemoteAddr))

	go c.writePump()

	c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.h.mgr.Unregister(c.conn.ID())
		_ = c.ws.Close()

		c.log.Info("websocket disconnected", zap.Uint64("dropped", c.conn.Dropped()))
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", zap.Error(err))
			}

			return
		}

		c.handle(data)
	}
}

func (c *wsClient) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(ServerMessage{Type: "error", Code: ErrCodeInvalidMessage, Message: "malformed message"})
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(ServerMessage{Type: "pong"})
	case "subscribe", "unsubscribe":
		scope, err := ParseScope(msg.Scope)
		if err != nil {
			c.reply(ServerMessage{Type: "error", Code: ErrCodeInvalidScope, Message: err.Error(), Scope: msg.Scope})
			return
		}

		if msg.Type == "subscribe" {
			err = c.h.mgr.Subscribe(c.conn.ID(), scope)
		} else {
			err = c.h.mgr.Unsubscribe(c.conn.ID(), scope)
		}

		if err != nil {
			return
		}

		c.reply(ServerMessage{Type: msg.Type + "d", Scope: scope.String()})
	default:
		c.reply(ServerMessage{Type: "error", Code: ErrCodeInvalidMessage, Message: "unknown message type " + msg.Type})
	}
}

func (c *wsClient) reply(m ServerMessage) {
	select {
	case c.ctrl <- m:
	default:
		c.log.Debug("control reply dropped", zap.String("type", m.Type))
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.conn.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"))

			return
		case m := <-c.ctrl:
			if err := c.write(m); err != nil {
				return
			}
		case <-c.conn.Ready():
			for _, ev := range c.conn.Drain() {
				ev := ev
				if err := c.write(ServerMessage{Type: "event", Event: &ev}); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(m ServerMessage) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.writeTimeout))

	if err := c.ws.WriteJSON(m); err != nil {
		c.log.Debug("websocket write failed", zap.Error(err))
		return err
	}

	return nil
}
