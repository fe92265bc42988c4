package websocket

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = 50 * time.Second
	readLimit    = 512
)

// Client is one socket following a session. Snapshots are full state, so it
// only ever holds the newest one the writer has not sent yet.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string

	mu      sync.Mutex
	pending chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{hub: hub, conn: conn, sessionID: sessionID, pending: make(chan []byte, 1)}
}

// offer queues msg and reports whether it displaced an unsent snapshot.
// Callers hold the hub's read lock, so pending is never closed under us.
func (c *Client) offer(msg []byte) (replaced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case c.pending <- msg:
		return false
	default:
	}
	select {
	case <-c.pending:
		replaced = true
	default:
	}
	c.pending <- msg
	return replaced
}

// serve blocks until the peer goes away.
func (c *Client) serve() {
	go c.write()
	c.read()
}

// read discards inbound frames; it exists to see pongs and the close.
func (c *Client) read() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Hub", "Socket closed unexpectedly", map[string]interface{}{
					"session_id": c.sessionID,
					"error":      err.Error(),
				})
			}
			return
		}
	}
}

func (c *Client) write() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case msg, open := <-c.pending:
			if !open {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, payload = websocket.TextMessage, msg
		case <-ping.C:
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}
