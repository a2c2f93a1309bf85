package server

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsClient is one connected viewer. Frames are pushed through a buffered
// send channel; a client that cannot keep up has its oldest frames dropped
// rather than stalling the broadcast.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newWSClient(conn *websocket.Conn, buffer int) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, buffer)}
}

// enqueue hands a frame to the client without blocking. Returns false if
// the frame was dropped.
func (c *wsClient) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// writePump drains the send channel onto the socket until it closes.
func (c *wsClient) writePump() {
	for b := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// wsHub tracks connected viewers and fans frames out to all of them.
type wsHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func newHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *wsHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast enqueues b for every connected client and reports how many
// clients dropped it.
func (h *wsHub) broadcast(b []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for c := range h.clients {
		if !c.enqueue(b) {
			dropped++
		}
	}
	return dropped
}

// closeAll disconnects every client.
func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
