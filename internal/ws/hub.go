package ws

import (
	"context"
	"log"
	"sync"

	"messaging-service/internal/observability"
)

// Hub is the per-user channel registry. Every authenticated realtime
// connection joins exactly one channel, named by its owner's user id; a
// user with several tabs holds several connections in the same channel.
// Membership is process-local and in-memory: it is created on
// authenticated connect, destroyed on disconnect, and never persisted.
type Hub struct {
	channels map[int]map[*connection]bool
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[int]map[*connection]bool)}
}

// Join adds a connection to the channel of the given user.
func (h *Hub) Join(userID int, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[userID]; !ok {
		h.channels[userID] = make(map[*connection]bool)
	}
	h.channels[userID][conn] = true
}

// Leave removes a connection from the channel of the given user. Empty
// channels are dropped from the registry.
func (h *Hub) Leave(userID int, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.channels, userID)
		}
	}
}

// Members reports how many connections a user's channel currently
// holds.
func (h *Hub) Members(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}

// EmitTo delivers one event to every connection in the user's channel.
// A channel with zero members drops the event silently: an offline
// recipient discovers the message through the history endpoint on next
// open. Delivery is best effort; a failed write closes that connection
// and removes it, the remaining members are unaffected.
func (h *Hub) EmitTo(userID int, event any) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.channels[userID]))
	for conn := range h.channels[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.send(event); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.close()
			h.Leave(userID, conn)
			h.publishWSError(userID, conn, err)
		}
	}
}

func (h *Hub) publishWSError(userID int, conn *connection, err error) {
	payload := lifecyclePayload("ws_error", conn.info, err.Error())
	payload.WS.ChannelUserID = userID

	headers := observability.BuildHeaders(conn.info.RequestID, conn.info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.messaging",
		observability.WSEventEnvelope("ws_error", payload), headers)
	observability.IncWSEvent("ws_error")
}
