package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// Gateway accepts realtime connections, authenticates each against the
// token verifier, places it in the owner's channel and processes
// send-message events until disconnect.
type Gateway struct {
	hub      *Hub
	messages repositories.MessageRepository
	verifier *auth.Verifier
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, messages repositories.MessageRepository, verifier *auth.Verifier) *Gateway {
	return &Gateway{hub: hub, messages: messages, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs its lifecycle. The credential
// is the same signed session token HTTP requests carry, supplied as the
// session cookie, a `token` query parameter or a bearer header. A
// connection that fails verification receives exactly one error event
// and is closed before any application event is read.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := middleware.TokenFromRequest(c)
	if token == "" {
		token = c.Query("token")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		text := "invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			text = "missing token"
		}
		client := newConnection(conn, ConnInfo{ConnID: newConnID(), ConnectedAt: time.Now()})
		_ = client.send(models.NewAuthError(text))
		client.close()
		observability.IncWSEvent("ws_reject")
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := newConnection(conn, info)
	g.hub.Join(identity.UserID, client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycleEvent(ctx, "ws_connect", info, "")

	// The request context is canceled the moment Handle returns, even
	// for an upgraded connection. The read loop and its persistence
	// calls outlive the handler, so they run on a detached context
	// that keeps the trace values.
	go g.readLoop(context.WithoutCancel(ctx), client, identity.UserID)
}

// readLoop processes one connection's events strictly in arrival order.
// It is the only reader of the socket, so a single sender's sequential
// sends are persisted and fanned out in the order they were sent.
func (g *Gateway) readLoop(ctx context.Context, client *connection, userID int) {
	var closeReason string
	defer func() {
		g.hub.Leave(userID, client)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycleEvent(ctx, "ws_disconnect", client.info, closeReason)
		client.close()
	}()

	for {
		_, data, err := client.ws.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			return
		}

		event, err := models.DecodeClientEvent(data)
		if err != nil {
			_ = client.send(models.NewMessageError("unsupported event"))
			continue
		}
		g.handleSend(ctx, client, userID, event)
	}
}

// handleSend validates one send-message event, persists it and fans the
// stored message out. Failures are reported to the originating
// connection only; the connection stays open.
func (g *Gateway) handleSend(ctx context.Context, client *connection, senderID int, event models.SendMessageEvent) {
	if event.ReceiverID <= 0 {
		_ = client.send(models.NewMessageError("invalid receiver id"))
		return
	}
	if event.ReceiverID == senderID {
		_ = client.send(models.NewMessageError("cannot message yourself"))
		return
	}
	if strings.TrimSpace(event.Content) == "" {
		_ = client.send(models.NewMessageError("empty content"))
		return
	}

	msg, err := g.messages.Append(ctx, senderID, event.ReceiverID, event.Content)
	if err != nil {
		_ = client.send(models.NewMessageError(sendErrorText(err)))
		return
	}

	observability.IncMessageSent("realtime")
	received := models.NewMessageReceived(msg)
	g.hub.EmitTo(event.ReceiverID, received)
	g.notifySelf(senderID, received)
}

// notifySelf echoes a successfully sent message back to the sender's
// own channel so every other tab or device of the sender stays in sync.
// It runs together with the receiver fan-out, after persistence.
func (g *Gateway) notifySelf(senderID int, event models.MessageReceivedEvent) {
	g.hub.EmitTo(senderID, event)
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, repositories.ErrEmptyContent):
		return "empty content"
	case errors.Is(err, repositories.ErrBadID):
		return "invalid receiver id"
	case errors.Is(err, repositories.ErrUserNotFound):
		return "unknown receiver"
	default:
		return "failed to store message"
	}
}

func (g *Gateway) publishLifecycleEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.messaging",
		observability.WSEventEnvelope(name, lifecyclePayload(name, info, reason)),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}
