package events

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ============================================================
// WEBSOCKET HUB
// ============================================================

const (
	writeTimeout  = 10 * time.Second
	readTimeout   = 60 * time.Second
	pingInterval  = 25 * time.Second
	clientBacklog = 32
)

// Hub streams events as JSON text frames to every connected websocket.
// A client that falls behind by more than its backlog is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	last    map[Type]Event
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*hubClient]struct{}),
		last:    make(map[Type]Event),
	}
}

// Publish is non-blocking.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Warnf("⚠️  Event encode failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.remember(e)
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("⚠️  Slow websocket client dropped")
			h.dropLocked(c)
		}
	}
}

// remember keeps the latest state-like events so new clients can catch up.
func (h *Hub) remember(e Event) {
	switch e.Type {
	case TypeSessionStarted:
		clear(h.last)
		h.last[e.Type] = e
	case TypePresenceState, TypeFeedback, TypeFeedbackCleared, TypeToday,
		TypeLocationChecked, TypeDetectorLoaded, TypeSuccess, TypeSessionEnded:
		h.last[e.Type] = e
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and replays the latest state events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, clientBacklog)}

	h.mu.Lock()
	replay := make([]Event, 0, len(h.last))
	for _, e := range h.last {
		replay = append(replay, e)
	}
	slices.SortStableFunc(replay, func(a, b Event) int { return a.At.Compare(b.At) })
	for _, e := range replay {
		if data, err := json.Marshal(e); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Infof("🔌 WebSocket client connected (%d total)", total)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump only services control frames; clients have nothing to say.
func (h *Hub) readPump(c *hubClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
	h.log.Infof("🔌 WebSocket client disconnected (%d left)", len(h.clients))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}
