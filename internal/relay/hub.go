package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	hub  *Hub
	user string
	send chan []byte
	once sync.Once
}

// writePump owns all writes to conn. It exits when send is closed or a
// write fails, and removes the client in the latter case.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.Remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Remove(c)
				return
			}
		}
	}
}

// readPump discards inbound frames and returns once the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks open sockets per user subject.
type Hub struct {
	mu       sync.RWMutex
	users    map[string]map[*client]struct{}
	count    int
	maxConns int
	metrics  *metrics.Relay
}

// NewHub creates a hub. maxConns of zero means unlimited.
func NewHub(maxConns int, m *metrics.Relay) *Hub {
	return &Hub{
		users:    make(map[string]map[*client]struct{}),
		maxConns: maxConns,
		metrics:  m,
	}
}

// Add registers conn for user and starts its write pump. It returns nil
// when the hub is full.
func (h *Hub) Add(user string, conn *websocket.Conn) *client {
	h.mu.Lock()
	if h.maxConns > 0 && h.count >= h.maxConns {
		h.mu.Unlock()
		return nil
	}
	c := &client{conn: conn, hub: h, user: user, send: make(chan []byte, sendBuffer)}
	set, ok := h.users[user]
	if !ok {
		set = make(map[*client]struct{})
		h.users[user] = set
	}
	set[c] = struct{}{}
	h.count++
	n := len(set)
	h.mu.Unlock()

	h.metrics.Connected()
	log.Info().Str("user", user).Int("sockets", n).Msg("relay client connected")
	go c.writePump()
	return c
}

// Remove unregisters c. Safe to call more than once.
func (h *Hub) Remove(c *client) {
	h.mu.Lock()
	set, ok := h.users[c.user]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.user)
	}
	h.count--
	h.mu.Unlock()

	c.close()
	h.metrics.Disconnected()
	log.Info().Str("user", c.user).Msg("relay client disconnected")
}

// Publish queues data on every socket of user and returns how many
// accepted it. Sockets whose buffer is full are disconnected.
func (h *Hub) Publish(user string, data []byte) int {
	// Sends happen under the read lock so Remove cannot close a channel
	// mid-send.
	h.mu.RLock()
	sent := 0
	var slow []*client
	for c := range h.users[user] {
		select {
		case c.send <- data:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("user", user).Msg("relay client too slow, disconnecting")
		h.metrics.Dropped()
		h.Remove(c)
	}
	return sent
}

// ClientCount is the number of open sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// UserCount is the number of users with at least one socket.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// Close disconnects everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, set := range h.users {
		for c := range set {
			all = append(all, c)
		}
	}
	h.users = make(map[string]map[*client]struct{})
	h.count = 0
	h.mu.Unlock()

	for _, c := range all {
		c.close()
		h.metrics.Disconnected()
	}
}
