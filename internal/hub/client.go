// ABOUTME: One connection session: websocket pumps, outbound queue, auth state
// ABOUTME: A Client is the presence Handle registered for its authenticated identity

package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxFrameSize = 4096

	// Outbound queue depth per connection. When the queue is full further
	// events are dropped rather than blocking other connections.
	sendQueueSize = 64
)

// Client is one live connection. It starts Unauthenticated (empty identity),
// becomes Authenticated on a login event, and is Closed when the transport
// goes away. The identity is explicit session state rather than something
// inferred from the socket.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	sessionID string

	mu       sync.Mutex
	identity string

	closeOnce sync.Once
	logger    *slog.Logger
}

// Identity returns the authenticated identity, or "" while Unauthenticated.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) setIdentity(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
}

// Deliver enqueues a serialized event for this connection. It never blocks:
// it reports false when the session is closed or its outbound queue is full,
// in which case the event is dropped.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears down the transport. Safe to call more than once; the first
// call wins and the read pump drives the disconnect transition.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads frames from the websocket and dispatches them. It owns the
// connection lifecycle: when it returns, the session moves to Closed.
func (c *Client) readPump() {
	defer c.hub.drop(c)

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}
		c.handleFrame(frame)
	}
}

// writePump drains the outbound queue to the websocket, one JSON object per
// frame, and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
