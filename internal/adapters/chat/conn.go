package chat

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// frame pairs a websocket message type with its payload so the write
// pump stays the single writer for data and control frames alike.
type frame struct {
	kind int
	data []byte
}

type wsConn struct {
	conn *websocket.Conn
	send chan frame

	mu     sync.RWMutex
	closed bool
}

func newWsConn(conn *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan frame, buffer),
	}
}

func (c *wsConn) TrySend(b []byte) error {
	return c.enqueue(frame{kind: websocket.TextMessage, data: b})
}

func (c *wsConn) Ping() error {
	return c.enqueue(frame{kind: websocket.PingMessage})
}

func (c *wsConn) pong(appData string) error {
	return c.enqueue(frame{kind: websocket.PongMessage, data: []byte(appData)})
}

func (c *wsConn) enqueue(f frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
