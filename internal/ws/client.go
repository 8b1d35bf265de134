package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/talktalk/server/internal/relay"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is the liveness probe interval: a connection that does not
	// answer a ping within it is closed and reclaimed.
	pongWait = 30 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendQueueSize bounds the per-connection outbound buffer. A peer whose
	// queue fills up is treated as dead so it cannot stall other relays.
	sendQueueSize = 64
)

var errConnClosed = errors.New("connection is closed")

// Client is one live transport session. It is owned by the gateway for its
// duration; the registry only holds a non-owning reference to it.
type Client struct {
	conn   *websocket.Conn
	connID string

	// identityID is set once on successful auth. It is written and read
	// only from the connection's read loop and its teardown.
	identityID string

	send      chan relay.Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		connID: uuid.NewString(),
		send:   make(chan relay.Frame, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Send queues a frame for delivery without blocking the caller. A full
// queue means the peer has stalled; the connection is closed so its
// gateway reclaims it.
func (c *Client) Send(f relay.Frame) error {
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.close()
		return errors.New("send queue full")
	}
}

// close is idempotent; the transport close unblocks the read loop, which
// runs the gateway's teardown exactly once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send queue and probes liveness with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
