package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches conn to sessionID and blocks until it closes. initial,
// when set, is sent before any later transition.
func ServeWs(hub *Hub, conn *websocket.Conn, sessionID string, initial []byte) {
	c := newClient(hub, conn, sessionID)
	if initial != nil {
		c.offer(initial)
	}
	hub.register <- c
	c.serve()
}
