package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

const readWait = 2 * time.Second

type gatewayFixture struct {
	hub      *Hub
	repo     *mocks.MessageRepositoryMock
	verifier *auth.Verifier
	server   *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	repo := new(mocks.MessageRepositoryMock)
	verifier := auth.NewVerifier("test-secret", time.Hour)
	gateway := NewGateway(hub, repo, verifier)

	router := gin.New()
	router.GET("/ws/chat", gateway.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{hub: hub, repo: repo, verifier: verifier, server: server}
}

func (f *gatewayFixture) dial(t *testing.T, userID int) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Issue(userID, []string{"chat"})
	require.NoError(t, err)

	conn := f.dialRaw(t, token)
	require.Eventuallyf(t, func() bool {
		return f.hub.Members(userID) > 0
	}, readWait, 5*time.Millisecond, "connection for user %d never joined its channel", userID)
	return conn
}

func (f *gatewayFixture) dialRaw(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/chat?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type serverFrame struct {
	Type string `json:"type"`
	raw  []byte
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame serverFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	frame.raw = data
	return frame
}

// readMessageEvent decodes a message-received frame, whose message
// fields sit flat beside the type tag.
func readMessageEvent(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	frame := readFrame(t, conn)
	require.Equal(t, models.EventMessageReceived, frame.Type)

	var msg models.Message
	require.NoError(t, json.Unmarshal(frame.raw, &msg))
	return msg
}

func errorText(t *testing.T, frame serverFrame) string {
	t.Helper()
	var event models.ErrorEvent
	require.NoError(t, json.Unmarshal(frame.raw, &event))
	return event.Message
}

func sendEvent(t *testing.T, conn *websocket.Conn, receiverID int, content string) {
	t.Helper()
	payload := map[string]any{"type": models.EventSendMessage, "receiverId": receiverID, "content": content}
	require.NoError(t, conn.WriteJSON(payload))
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	f := newGatewayFixture(t)

	conn := f.dialRaw(t, "garbage")
	frame := readFrame(t, conn)
	assert.Equal(t, models.EventError, frame.Type)
	assert.Equal(t, "invalid token", errorText(t, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed after the error event")
	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)

	conn := f.dialRaw(t, "")
	frame := readFrame(t, conn)
	assert.Equal(t, models.EventError, frame.Type)
	assert.Equal(t, "missing token", errorText(t, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed after the error event")
}

func TestGatewayFansOutToBothChannels(t *testing.T) {
	f := newGatewayFixture(t)

	stored := models.Message{ID: 9, SenderID: 1, ReceiverID: 2, Content: "hello", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	f.repo.On("Append", mock.Anything, 1, 2, "hello").Return(stored, nil).Once()

	sender := f.dial(t, 1)
	receiver := f.dial(t, 2)

	sendEvent(t, sender, 2, "hello")

	got := readMessageEvent(t, receiver)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, 1, got.SenderID)
	assert.Equal(t, 2, got.ReceiverID)

	echo := readMessageEvent(t, sender)
	assert.Equal(t, got, echo, "self-echo must carry the identical payload")

	f.repo.AssertExpectations(t)
}

func TestGatewayEchoesToSenderSecondTab(t *testing.T) {
	f := newGatewayFixture(t)

	stored := models.Message{ID: 3, SenderID: 1, ReceiverID: 2, Content: "ping"}
	f.repo.On("Append", mock.Anything, 1, 2, "ping").Return(stored, nil).Once()

	firstTab := f.dial(t, 1)
	secondTab := f.dial(t, 1)
	require.Eventually(t, func() bool {
		return f.hub.Members(1) == 2
	}, readWait, 5*time.Millisecond)

	sendEvent(t, firstTab, 2, "ping")

	assert.Equal(t, stored.ID, readMessageEvent(t, firstTab).ID)
	assert.Equal(t, stored.ID, readMessageEvent(t, secondTab).ID)
	f.repo.AssertExpectations(t)
}

func TestGatewayRejectsEmptyContent(t *testing.T) {
	f := newGatewayFixture(t)
	sender := f.dial(t, 1)

	sendEvent(t, sender, 2, "   ")

	frame := readFrame(t, sender)
	assert.Equal(t, models.EventMessageError, frame.Type)
	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// The connection survives a rejected send.
	stored := models.Message{ID: 5, SenderID: 1, ReceiverID: 2, Content: "ok"}
	f.repo.On("Append", mock.Anything, 1, 2, "ok").Return(stored, nil).Once()
	sendEvent(t, sender, 2, "ok")
	assert.Equal(t, stored.ID, readMessageEvent(t, sender).ID)
	f.repo.AssertExpectations(t)
}

func TestGatewayRejectsSelfSend(t *testing.T) {
	f := newGatewayFixture(t)
	sender := f.dial(t, 1)

	sendEvent(t, sender, 1, "note to self")

	frame := readFrame(t, sender)
	assert.Equal(t, models.EventMessageError, frame.Type)
	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGatewayRejectsUnknownEventType(t *testing.T) {
	f := newGatewayFixture(t)
	sender := f.dial(t, 1)

	require.NoError(t, sender.WriteJSON(map[string]any{"type": "typing-indicator"}))

	frame := readFrame(t, sender)
	assert.Equal(t, models.EventMessageError, frame.Type)
}

func TestGatewayReportsStoreFailure(t *testing.T) {
	f := newGatewayFixture(t)

	f.repo.On("Append", mock.Anything, 1, 2, "hello").Return(models.Message{}, assert.AnError).Once()
	sender := f.dial(t, 1)

	sendEvent(t, sender, 2, "hello")

	frame := readFrame(t, sender)
	assert.Equal(t, models.EventMessageError, frame.Type)
	f.repo.AssertExpectations(t)
}

func TestGatewayDisconnectRemovesMembershipNotMessage(t *testing.T) {
	f := newGatewayFixture(t)

	stored := models.Message{ID: 11, SenderID: 1, ReceiverID: 2, Content: "missed"}
	f.repo.On("Append", mock.Anything, 1, 2, "missed").Return(stored, nil).Once()

	sender := f.dial(t, 1)
	receiver := f.dial(t, 2)

	receiver.Close()
	require.Eventually(t, func() bool {
		return f.hub.Members(2) == 0
	}, readWait, 5*time.Millisecond)

	sendEvent(t, sender, 2, "missed")

	// The message is persisted and the sender still gets the echo even
	// though the recipient channel is empty.
	assert.Equal(t, stored.ID, readMessageEvent(t, sender).ID)
	f.repo.AssertExpectations(t)
}

func TestGatewayIndependentConcurrentSenders(t *testing.T) {
	f := newGatewayFixture(t)

	f.repo.On("Append", mock.Anything, 1, 2, "from one").
		Return(models.Message{ID: 21, SenderID: 1, ReceiverID: 2, Content: "from one"}, nil).Once()
	f.repo.On("Append", mock.Anything, 3, 2, "from three").
		Return(models.Message{ID: 22, SenderID: 3, ReceiverID: 2, Content: "from three"}, nil).Once()

	first := f.dial(t, 1)
	second := f.dial(t, 3)
	receiver := f.dial(t, 2)

	sendEvent(t, first, 2, "from one")
	sendEvent(t, second, 2, "from three")

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		msg := readMessageEvent(t, receiver)
		got[msg.Content] = msg.SenderID
	}
	assert.Equal(t, map[string]int{"from one": 1, "from three": 3}, got)
	f.repo.AssertExpectations(t)
}

// appendContextRecorder captures the context state seen by the store at
// the moment of each Append.
type appendContextRecorder struct {
	mu      sync.Mutex
	ctxErrs []error
}

func (r *appendContextRecorder) Append(ctx context.Context, senderID, receiverID int, content string) (models.Message, error) {
	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()
	return models.Message{ID: 1, SenderID: senderID, ReceiverID: receiverID, Content: content}, nil
}

func (r *appendContextRecorder) History(ctx context.Context, userA, userB int) ([]models.Message, error) {
	return nil, nil
}

func (r *appendContextRecorder) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	return nil, nil
}

func (r *appendContextRecorder) errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.ctxErrs...)
}

// The handshake handler returns as soon as the read loop is running,
// and net/http cancels the request context at that point even though
// the connection stays upgraded. Sends arriving afterwards must still
// reach the store on a live context.
func TestGatewayAppendOutlivesHandshakeRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	recorder := &appendContextRecorder{}
	verifier := auth.NewVerifier("test-secret", time.Hour)
	gateway := NewGateway(hub, recorder, verifier)

	router := gin.New()
	router.GET("/ws/chat", gateway.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, err := verifier.Issue(1, []string{"chat"})
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.Members(1) > 0
	}, readWait, 5*time.Millisecond)

	// Give the handler time to return so the request context is
	// already canceled before the first send.
	time.Sleep(50 * time.Millisecond)

	sendEvent(t, conn, 2, "late send")
	got := readMessageEvent(t, conn)
	assert.Equal(t, "late send", got.Content)

	for _, ctxErr := range recorder.errs() {
		assert.NoError(t, ctxErr, "store saw a canceled context")
	}
	require.NotEmpty(t, recorder.errs())
}
