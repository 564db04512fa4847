package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// ErrChannelOpen wraps every failure to establish the channel.
var ErrChannelOpen = errors.New("channel open failed")

// Conn is one open channel.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer opens gorilla websocket channels and keeps them alive
// with pings.
type WebsocketDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	PingInterval time.Duration
	PongTimeout  time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (status %d)", ErrChannelOpen, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrChannelOpen, err)
	}
	ping, pong := d.PingInterval, d.PongTimeout
	if ping <= 0 {
		ping = pingInterval
	}
	if pong <= 0 {
		pong = pongTimeout
	}
	return newWSConn(conn, ping, pong), nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex // serialises pings and the close frame
	done      chan struct{}
	closeOnce sync.Once
	pong      time.Duration
}

func newWSConn(conn *websocket.Conn, ping, pong time.Duration) *wsConn {
	c := &wsConn{conn: conn, done: make(chan struct{}), pong: pong}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pong))
	})
	conn.SetReadDeadline(time.Now().Add(pong))
	go c.pingLoop(ping)
	return c
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	mt, data, err := c.conn.ReadMessage()
	if err == nil {
		c.conn.SetReadDeadline(time.Now().Add(c.pong))
	}
	return mt, data, err
}

// Close sends a best-effort close frame and releases the socket. Safe to
// call more than once and concurrently with ReadMessage.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// pingLoop exits when the connection is closed or a ping fails.
func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
