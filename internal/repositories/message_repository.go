package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"church-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// CreateMessageParams carries a new message. Exactly one of GroupID and
// ReceiverID must be set; Body may be nil only when media is attached.
type CreateMessageParams struct {
	GroupID    *int
	ReceiverID *int
	SenderID   int
	Body       *string
	MediaURL   *string
	MediaType  *models.MediaType
}

// MessageRepository defines interactions for group and direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListGroupMessages(ctx context.Context, groupID int, page int, limit int) ([]models.Message, error)
	MarkGroupMessagesRead(ctx context.Context, groupID int, readerID int) error
	ListConversations(ctx context.Context, userID int) ([]models.Conversation, error)
	ListDirectMessages(ctx context.Context, userID int, otherID int) ([]models.Message, error)
	MarkDirectMessagesRead(ctx context.Context, userID int, otherID int) error
	DeleteMessage(ctx context.Context, messageID int, senderID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, group_id, receiver_id, sender_id, body, media_url, media_type, is_read, created_at`

// CreateMessage persists a message.
func (r *MessageRepo) CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (group_id, receiver_id, sender_id, body, media_url, media_type)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		p.GroupID, p.ReceiverID, p.SenderID, p.Body, p.MediaURL, p.MediaType).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListGroupMessages fetches one page, newest first. Callers reverse the page
// before returning it so clients see chronological order.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID int, page int, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE group_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		groupID, limit, (page-1)*limit)
	return msgs, err
}

// MarkGroupMessagesRead flags every message in the group not authored by the
// reader as read.
func (r *MessageRepo) MarkGroupMessagesRead(ctx context.Context, groupID int, readerID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read=TRUE WHERE group_id=$1 AND sender_id<>$2 AND NOT is_read`,
		groupID, readerID)
	return err
}

// ListConversations groups the user's direct messages by counterpart, with
// last message and unread count per thread, ordered by last activity.
func (r *MessageRepo) ListConversations(ctx context.Context, userID int) ([]models.Conversation, error) {
	query := `SELECT t.user_id,
            lm.body AS last_message,
            lm.media_type AS last_media_type,
            t.last_message_at,
            (SELECT COUNT(*) FROM messages u
             WHERE u.sender_id = t.user_id AND u.receiver_id = $1 AND NOT u.is_read) AS unread_count
        FROM (
            SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS user_id,
                   MAX(created_at) AS last_message_at
            FROM messages
            WHERE receiver_id IS NOT NULL AND (sender_id = $1 OR receiver_id = $1)
            GROUP BY 1
        ) t
        JOIN LATERAL (
            SELECT body, media_type FROM messages
            WHERE receiver_id IS NOT NULL
              AND ((sender_id = $1 AND receiver_id = t.user_id)
                OR (sender_id = t.user_id AND receiver_id = $1))
            ORDER BY created_at DESC LIMIT 1
        ) lm ON TRUE
        ORDER BY t.last_message_at DESC`
	convos := []models.Conversation{}
	err := r.db.SelectContext(ctx, &convos, query, userID)
	return convos, err
}

// ListDirectMessages returns the full 1:1 thread in chronological order.
func (r *MessageRepo) ListDirectMessages(ctx context.Context, userID int, otherID int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE receiver_id IS NOT NULL
           AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
         ORDER BY created_at ASC`, userID, otherID)
	return msgs, err
}

// MarkDirectMessagesRead flags messages received from the counterpart as read.
func (r *MessageRepo) MarkDirectMessagesRead(ctx context.Context, userID int, otherID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read=TRUE WHERE sender_id=$2 AND receiver_id=$1 AND NOT is_read`,
		userID, otherID)
	return err
}

// DeleteMessage removes a message when invoked by its sender. Reaction rows
// go with it via the foreign-key cascade.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int, senderID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
