package models

import "time"

// MediaType classifies an attached file.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Message belongs to exactly one of a group or a direct recipient. Body may
// be absent only when media is attached.
type Message struct {
	ID         int        `db:"id" json:"id"`
	GroupID    *int       `db:"group_id" json:"group_id,omitempty"`
	ReceiverID *int       `db:"receiver_id" json:"receiver_id,omitempty"`
	SenderID   int        `db:"sender_id" json:"sender_id"`
	Body       *string    `db:"body" json:"body,omitempty"`
	MediaURL   *string    `db:"media_url" json:"media_url,omitempty"`
	MediaType  *MediaType `db:"media_type" json:"media_type,omitempty"`
	IsRead     bool       `db:"is_read" json:"is_read"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Conversation summarizes a 1:1 thread grouped by counterpart.
type Conversation struct {
	UserID        int       `db:"user_id" json:"user_id"`
	LastMessage   *string   `db:"last_message" json:"last_message,omitempty"`
	LastMediaType *string   `db:"last_media_type" json:"last_media_type,omitempty"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int       `db:"unread_count" json:"unread_count"`
}
