package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnInfo carries per-connection metadata for audit and metrics.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// connection wraps a websocket with a write mutex. Fan-out from other
// users' sends and error events from this connection's own read loop
// may land concurrently; gorilla permits only one writer at a time.
type connection struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	info ConnInfo
}

func newConnection(wsConn *websocket.Conn, info ConnInfo) *connection {
	return &connection{ws: wsConn, info: info}
}

func (c *connection) send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(event)
}

func (c *connection) close() error {
	return c.ws.Close()
}
