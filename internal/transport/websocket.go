package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wessimpson/lobsim/internal/sim"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteBuffer = 64
	wsWriteWait   = 5 * time.Second
)

// WebSocketHub is a subscriber on a ChannelPublisher that re-broadcasts
// every snapshot to connected websocket clients as JSON text frames: a
// register/unregister/broadcast loop with a per-client buffered send
// channel and drop-on-backpressure disconnect.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketHub constructs an empty hub. Call Run with a ChannelPublisher
// subscription to start forwarding snapshots.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{clients: make(map[*wsClient]struct{})}
}

// Run drains snapshots from ch until it is closed, broadcasting each as
// JSON to every connected client. Intended to run in its own goroutine,
// fed by (*ChannelPublisher).Subscribe().
func (h *WebSocketHub) Run(ch <-chan sim.Snapshot) {
	for snap := range ch {
		payload, err := json.Marshal(snap)
		if err != nil {
			log.Error().Err(err).Msg("websocket hub: marshal snapshot failed")
			continue
		}
		h.broadcast(payload)
	}
}

func (h *WebSocketHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Warn().Msg("websocket hub: client send buffer full, dropping connection")
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// ServeHTTP upgrades the connection and registers it for broadcast
// delivery until the client disconnects.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket hub: upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsWriteBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains c.send to the socket until it closes.
func (h *WebSocketHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readPump discards client frames (this is a publish-only feed) and
// detects disconnects, unregistering the client.
func (h *WebSocketHub) readPump(c *wsClient) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
