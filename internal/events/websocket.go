package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader mirrors the teacher's websocket.go Upgrader: generous
// buffer sizes for JSON event payloads, CORS left open (this is a
// machine event feed behind operator-controlled network placement,
// not a browser-facing page, matching SPEC_FULL.md's "no web UI"
// non-goal).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketSink broadcasts envelopes as JSON text frames to every
// connected client at one HTTP endpoint, grounded on the teacher's
// wsConn.writeJSON broadcast shape, trimmed of its audio-streaming and
// session-management responsibilities this sink doesn't need.
type WebSocketSink struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewWebSocketSink builds an empty sink; call ServeHTTP as the handler
// for the configured `/events` route.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{clients: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the connection and registers it as a broadcast
// target until it disconnects.
func (w *WebSocketSink) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.clients[conn] = struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.clients, conn)
		w.mu.Unlock()
		conn.Close()
	}()

	// Drain and discard client frames; this is a one-way event feed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish marshals the envelope once and writes it to every connected
// client, dropping any client whose write fails or times out.
func (w *WebSocketSink) Publish(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	w.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(w.clients))
	for c := range w.clients {
		conns = append(conns, c)
	}
	w.mu.RUnlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			w.mu.Lock()
			delete(w.clients, c)
			w.mu.Unlock()
			c.Close()
		}
	}
	return nil
}
