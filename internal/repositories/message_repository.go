package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines durable-store interactions for messages.
type MessageRepository interface {
	InsertMessage(ctx context.Context, senderID, recipientID int64, content, messageType string, attachments []string, replyToID *int64) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	MarkMessageRead(ctx context.Context, messageID int64) (bool, error)
	ListMessagesBetween(ctx context.Context, userID, counterpartID int64, limit int) ([]models.Message, error)
	CountUnread(ctx context.Context, ownerID, counterpartID int64) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, recipient_id, content, message_type, attachments, reply_to_id, is_read, created_at`

// InsertMessage stores a message and returns it with its durable id and
// authoritative created_at.
func (r *MessageRepo) InsertMessage(ctx context.Context, senderID, recipientID int64, content, messageType string, attachments []string, replyToID *int64) (models.Message, error) {
	if attachments == nil {
		attachments = []string{}
	}
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (sender_id, recipient_id, content, message_type, attachments, reply_to_id)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		senderID, recipientID, content, messageType, pq.StringArray(attachments), replyToID).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkMessageRead flips is_read to true. Returns true only for the first
// transition; re-marking an already-read message is a no-op.
func (r *MessageRepo) MarkMessageRead(ctx context.Context, messageID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE WHERE id=$1 AND is_read = FALSE`, messageID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMessagesBetween returns the most recent messages exchanged between two
// users in ascending created_at order.
func (r *MessageRepo) ListMessagesBetween(ctx context.Context, userID, counterpartID int64, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages
            WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
            ORDER BY created_at DESC, id DESC
            LIMIT $3
        ) recent
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userID, counterpartID, limit)
	return msgs, err
}

// CountUnread counts inbound unread messages from a counterpart.
func (r *MessageRepo) CountUnread(ctx context.Context, ownerID, counterpartID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE recipient_id=$1 AND sender_id=$2 AND is_read = FALSE`,
		ownerID, counterpartID)
	return count, err
}
