package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientEventSendMessage(t *testing.T) {
	event, err := DecodeClientEvent([]byte(`{"type":"send-message","receiverId":2,"content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, event.ReceiverID)
	assert.Equal(t, "hello", event.Content)
}

func TestDecodeClientEventUnknownType(t *testing.T) {
	_, err := DecodeClientEvent([]byte(`{"type":"typing","receiverId":2}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestDecodeClientEventMalformedJSON(t *testing.T) {
	_, err := DecodeClientEvent([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestServerEventShapes(t *testing.T) {
	received, err := json.Marshal(NewMessageReceived(Message{ID: 1, SenderID: 2, ReceiverID: 3, Content: "hi"}))
	require.NoError(t, err)
	assert.Contains(t, string(received), `"type":"message-received"`)
	assert.Contains(t, string(received), `"senderId":2`)
	assert.NotContains(t, string(received), `"message":`)

	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(received, &flat))
	assert.Contains(t, flat, "id")
	assert.Contains(t, flat, "receiverId")
	assert.Contains(t, flat, "content")

	authErr, err := json.Marshal(NewAuthError("invalid token"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"invalid token"}`, string(authErr))

	msgErr, err := json.Marshal(NewMessageError("empty content"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message-error","message":"empty content"}`, string(msgErr))
}
