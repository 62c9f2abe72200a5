// Package realtime pushes notification events to connected browsers over
// websockets.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Event is one message pushed to an owner's connections.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// client is one websocket connection. Writes go through send so only the
// write pump touches the connection.
type client struct {
	ownerID string
	conn    *websocket.Conn
	send    chan Event
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks connections per owner.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub returns an empty Hub. allowedOrigins empty means any origin.
func NewHub(log zerolog.Logger, allowedOrigins ...string) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		log: log,
	}
}

// Serve upgrades the request and keeps the connection registered for ownerID
// until the peer goes away. It blocks for the life of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, ownerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Websocket upgrade failed")
		return
	}

	c := &client{ownerID: ownerID, conn: conn, send: make(chan Event, sendBuffer)}
	h.add(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ownerID]; !ok {
		h.clients[c.ownerID] = make(map[*client]struct{})
	}
	h.clients[c.ownerID][c] = struct{}{}
	total := len(h.clients[c.ownerID])
	h.mu.Unlock()

	h.log.Debug().Str("owner_id", c.ownerID).Int("connections", total).Msg("Websocket connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.ownerID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.ownerID)
		}
	}
	h.mu.Unlock()

	c.close()
	h.log.Debug().Str("owner_id", c.ownerID).Msg("Websocket disconnected")
}

// readPump discards client messages and keeps the read deadline moving on pongs.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.log.Warn().Err(err).Str("owner_id", c.ownerID).Msg("Websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish queues ev for every connection of ownerID and returns how many
// connections it was queued for. A connection whose buffer is full misses
// the event rather than stalling the others.
func (h *Hub) Publish(ownerID string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients[ownerID] {
		select {
		case c.send <- ev:
			delivered++
		default:
			h.log.Warn().Str("owner_id", ownerID).Msg("Websocket buffer full, dropping event")
		}
	}
	return delivered
}

// Connections returns the number of open connections for ownerID.
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			c.close()
		}
	}
}
