package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrEmptyContent = errors.New("empty message content")
	ErrBadID        = errors.New("malformed user id")
)

// MessageRepository is the durable, append-only store of direct
// messages. Messages are never edited or deleted.
type MessageRepository interface {
	Append(ctx context.Context, senderID int, receiverID int, content string) (models.Message, error)
	History(ctx context.Context, userA int, userB int) ([]models.Message, error)
	ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error)
}

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db    *sqlx.DB
	users UserRepository
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB, users UserRepository) *MessageRepo {
	return &MessageRepo{db: db, users: users}
}

// Append persists one message with a server-assigned timestamp. Content
// is trimmed before storage; content that trims to nothing fails with
// ErrEmptyContent, an unknown participant fails with ErrUserNotFound.
func (r *MessageRepo) Append(ctx context.Context, senderID int, receiverID int, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyContent
	}
	if senderID <= 0 || receiverID <= 0 {
		return models.Message{}, ErrBadID
	}

	for _, id := range []int{senderID, receiverID} {
		exists, err := r.users.Exists(ctx, id)
		if err != nil {
			return models.Message{}, err
		}
		if !exists {
			return models.Message{}, ErrUserNotFound
		}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)
        RETURNING id, sender_id, receiver_id, content, created_at`, senderID, receiverID, content).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt)
	return msg, err
}

// History returns all messages between the pair in display order. The
// filter is pair-symmetric: History(a, b) and History(b, a) return the
// same sequence. Unknown users yield an empty slice, not an error.
func (r *MessageRepo) History(ctx context.Context, userA int, userB int) ([]models.Message, error) {
	if userA <= 0 || userB <= 0 {
		return nil, ErrBadID
	}

	query := `SELECT id, sender_id, receiver_id, content, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}

// ListConversations returns one row per conversation partner carrying
// the latest message, most recent conversation first.
func (r *MessageRepo) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	if userID <= 0 {
		return nil, ErrBadID
	}

	query := `SELECT friend_id, last_content, last_sent_at FROM (
            SELECT DISTINCT ON (CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END)
                CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END AS friend_id,
                content AS last_content,
                created_at AS last_sent_at
            FROM messages
            WHERE sender_id=$1 OR receiver_id=$1
            ORDER BY CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END, created_at DESC, id DESC
        ) latest
        ORDER BY last_sent_at DESC`
	summaries := []models.ConversationSummary{}
	err := r.db.SelectContext(ctx, &summaries, query, userID)
	return summaries, err
}
