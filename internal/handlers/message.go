package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler serves the history and send endpoints. Sending through
// this path performs no realtime fan-out: clients without a socket
// re-fetch history instead.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messageRepo: messageRepo, userRepo: userRepo, audit: audit}
}

// GetMessages returns the ordered message history between the caller
// and the friendId query parameter. Idempotent, no side effects.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	friendID, err := strconv.Atoi(c.Query("friendId"))
	if err != nil || friendID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.messageRepo.History(c.Request.Context(), userID, friendID)
	if err != nil {
		if errors.Is(err, repositories.ErrBadID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
			return
		}
		h.emitAudit(c, "ERROR", "failed to load messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// PostMessage persists a message and returns it. This is the fallback
// send path for clients without a realtime connection.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		FriendID int    `json:"friendId" binding:"required"`
		Content  string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if req.FriendID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	msg, err := h.messageRepo.Append(c.Request.Context(), userID, req.FriendID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrEmptyContent), errors.Is(err, repositories.ErrBadID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		case errors.Is(err, repositories.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown participant"})
		default:
			h.emitAudit(c, "ERROR", "failed to store message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	observability.IncMessageSent("rest")
	c.JSON(http.StatusCreated, msg)
}

type conversationResponse struct {
	FriendID       int       `json:"friendId"`
	FriendUsername string    `json:"friendUsername,omitempty"`
	LastContent    string    `json:"lastContent"`
	LastSentAt     time.Time `json:"lastSentAt"`
}

// ListConversations returns one summary per conversation partner of the
// caller, most recent first, with the partner's username resolved. A
// partner whose account no longer exists keeps their messages but loses
// the username.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")
	ctx := c.Request.Context()

	summaries, err := h.messageRepo.ListConversations(ctx, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "failed to load conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	conversations := make([]conversationResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := conversationResponse{
			FriendID:    s.FriendID,
			LastContent: s.LastContent,
			LastSentAt:  s.LastSentAt,
		}
		friend, err := h.userRepo.GetByID(ctx, s.FriendID)
		switch {
		case err == nil:
			resp.FriendUsername = friend.Username
		case errors.Is(err, repositories.ErrUserNotFound):
			// deleted account, keep the summary without a name
		default:
			h.emitAudit(c, "ERROR", "failed to load conversations")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
			return
		}
		conversations = append(conversations, resp)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	requestID := requestIDFromContext(c)
	var userID *string
	if id := userIDFromContext(c); id != nil {
		value := strconv.FormatInt(*id, 10)
		userID = &value
	}
	h.audit.Emit(c.Request.Context(), level, text, requestID, userID)
}
