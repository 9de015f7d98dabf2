package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-watch-agent/event"
	"github.com/nedpals/nfc-watch-agent/protocol"
	"github.com/nedpals/nfc-watch-agent/reader"
)

// writeTimeout bounds a single write so a stalled client cannot hold up
// event dispatch.
const writeTimeout = 5 * time.Second

// client is a connected event subscriber.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// hub fans reader events out to WebSocket clients.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{
		clients: make(map[*client]bool),
		logger:  logger,
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends msg to every client, dropping those that fail.
func (h *hub) broadcast(msg protocol.WebSocketMessage) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.logger.Printf("Dropping client %s: %v", c.conn.RemoteAddr(), err)
			c.conn.Close()
			h.remove(c)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

// forward subscribes the hub to the reader events reaching target.
func (h *hub) forward(target *event.Target) func() {
	listener := func(e *event.Event) {
		h.broadcast(protocol.WebSocketMessage{Type: e.Type, Payload: e.Detail})
	}
	removeWatch := target.AddListener(reader.EventWatch, listener)
	removeStatus := target.AddListener(reader.EventStatus, listener)
	return func() {
		removeWatch()
		removeStatus()
	}
}
