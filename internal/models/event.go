package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Realtime event vocabulary. The set is closed: anything else arriving
// on a connection is rejected at the boundary before dispatch.
const (
	EventSendMessage     = "send-message"
	EventMessageReceived = "message-received"
	EventError           = "error"
	EventMessageError    = "message-error"
)

var ErrUnknownEventType = errors.New("unknown event type")

// SendMessageEvent is the only client-to-server realtime event.
type SendMessageEvent struct {
	ReceiverID int    `json:"receiverId"`
	Content    string `json:"content"`
}

// MessageReceivedEvent carries a persisted message to the receiver's
// channel and, as a self-echo, to the sender's own channel. The
// message fields sit flat beside the type tag on the wire.
type MessageReceivedEvent struct {
	Type string `json:"type"`
	Message
}

// ErrorEvent reports a connection-level failure ("error", precedes
// disconnect) or a per-send failure ("message-error", connection stays
// open).
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewMessageReceived wraps a stored message for fan-out.
func NewMessageReceived(msg Message) MessageReceivedEvent {
	return MessageReceivedEvent{Type: EventMessageReceived, Message: msg}
}

// NewAuthError builds the single error event emitted before an
// unauthenticated connection is closed.
func NewAuthError(text string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: text}
}

// NewMessageError builds a non-fatal per-send error event.
func NewMessageError(text string) ErrorEvent {
	return ErrorEvent{Type: EventMessageError, Message: text}
}

// DecodeClientEvent validates a raw frame against the closed client
// event set. Payload semantics (positive receiver id, non-empty
// content) are checked by the gateway, not here.
func DecodeClientEvent(data []byte) (SendMessageEvent, error) {
	var envelope struct {
		Type       string `json:"type"`
		ReceiverID int    `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return SendMessageEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if envelope.Type != EventSendMessage {
		return SendMessageEvent{}, ErrUnknownEventType
	}
	return SendMessageEvent{ReceiverID: envelope.ReceiverID, Content: envelope.Content}, nil
}
