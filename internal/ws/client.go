package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sender is the outbound side of one member connection. The room talks to
// it without ever blocking: trySend fails fast when the peer cannot keep up.
type sender interface {
	trySend(msg []byte) bool
	close()
}

// clientConn decouples fan-out from socket I/O with a bounded send queue;
// writePump is the only goroutine that writes to the socket.
type clientConn struct {
	rawConn *websocket.Conn

	mu     sync.Mutex // guards send against close; reader acks race room teardown
	closed bool
	send   chan []byte
}

func newClientConn(rawConn *websocket.Conn, sendBuffer int) *clientConn {
	return &clientConn{
		rawConn: rawConn,
		send:    make(chan []byte, sendBuffer),
	}
}

// trySend enqueues without blocking. False means the queue is full or the
// connection is already torn down; the caller disconnects the member rather
// than stall the room.
func (c *clientConn) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close shuts the send queue down. The room calls it when a member leaves,
// but the member's own reader may be enqueueing a reply at the same moment,
// so the closed flag and the channel close stay under one mutex.
func (c *clientConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue onto the socket and keeps the peer alive
// with pings. It exits when the queue is closed or a write fails.
func (c *clientConn) writePump(idleTimeout time.Duration) {
	ticker := time.NewTicker(pingPeriod(idleTimeout))
	defer func() {
		ticker.Stop()
		c.rawConn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.rawConn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.rawConn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func pingPeriod(idleTimeout time.Duration) time.Duration {
	return idleTimeout * 9 / 10 // must fire before the read deadline lapses
}
