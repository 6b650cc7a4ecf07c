package models

import "time"

// Message represents a direct message between two users. Messages are
// immutable once stored; ordering within a conversation is by
// (created_at, id) ascending.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"senderId"`
	ReceiverID int       `db:"receiver_id" json:"receiverId"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ConversationSummary is the API-friendly view of one conversation
// partner for the chat sidebar. Conversations are derived from the
// messages table, never stored.
type ConversationSummary struct {
	FriendID    int       `db:"friend_id" json:"friendId"`
	LastContent string    `db:"last_content" json:"lastContent"`
	LastSentAt  time.Time `db:"last_sent_at" json:"lastSentAt"`
}
