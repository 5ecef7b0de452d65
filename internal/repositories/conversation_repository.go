package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

// ConversationRepository maintains the conversation index projection.
// All writes are incremental and triggered by delivery/read events; the
// projection can always be rebuilt from message history.
type ConversationRepository interface {
	ApplySend(ctx context.Context, msg models.Message) error
	ApplyRead(ctx context.Context, ownerID, counterpartID int64) error
	ListConversations(ctx context.Context, ownerID int64) ([]models.ConversationSummary, error)
	ListCounterparts(ctx context.Context, userID int64) ([]int64, error)
	Recompute(ctx context.Context, ownerID, counterpartID int64) (models.ConversationSummary, error)
}

// ConversationRepo is a sqlx-backed repository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// ApplySend upserts both sides of the pair for a freshly stored message.
// Only the recipient side accrues unread. The atomic SQL increment keeps
// per-owner updates serialized under concurrent sends.
func (r *ConversationRepo) ApplySend(ctx context.Context, msg models.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `INSERT INTO conversation_summaries (owner_id, counterpart_id, last_message_id, last_message_at, unread_count)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (owner_id, counterpart_id) DO UPDATE SET
            last_message_id = EXCLUDED.last_message_id,
            last_message_at = EXCLUDED.last_message_at,
            unread_count = conversation_summaries.unread_count + $5`

	if _, err := tx.ExecContext(ctx, upsert, msg.SenderID, msg.RecipientID, msg.ID, msg.CreatedAt, 0); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, msg.RecipientID, msg.SenderID, msg.ID, msg.CreatedAt, 1); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyRead decrements the owner's unread count for a counterpart, floored
// at zero.
func (r *ConversationRepo) ApplyRead(ctx context.Context, ownerID, counterpartID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversation_summaries
         SET unread_count = GREATEST(unread_count - 1, 0)
         WHERE owner_id=$1 AND counterpart_id=$2`,
		ownerID, counterpartID)
	return err
}

// ListConversations returns the owner's summaries, most recent first.
func (r *ConversationRepo) ListConversations(ctx context.Context, ownerID int64) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	err := r.db.SelectContext(ctx, &summaries,
		`SELECT owner_id, counterpart_id, last_message_id, last_message_at, unread_count
         FROM conversation_summaries
         WHERE owner_id=$1
         ORDER BY last_message_at DESC`,
		ownerID)
	return summaries, err
}

// ListCounterparts returns the users the given user has a conversation with.
// Used to bound presence fan-out.
func (r *ConversationRepo) ListCounterparts(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT counterpart_id FROM conversation_summaries WHERE owner_id=$1`,
		userID)
	return ids, err
}

// Recompute rebuilds one summary row from message history and returns the
// repaired row. Safe to call any time; the projection holds no authority.
func (r *ConversationRepo) Recompute(ctx context.Context, ownerID, counterpartID int64) (models.ConversationSummary, error) {
	var exchanged int
	err := r.db.GetContext(ctx, &exchanged,
		`SELECT COUNT(*) FROM messages
         WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)`,
		ownerID, counterpartID)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	if exchanged == 0 {
		_, err := r.db.ExecContext(ctx,
			`DELETE FROM conversation_summaries WHERE owner_id=$1 AND counterpart_id=$2`,
			ownerID, counterpartID)
		return models.ConversationSummary{OwnerID: ownerID, CounterpartID: counterpartID}, err
	}

	var summary models.ConversationSummary
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO conversation_summaries (owner_id, counterpart_id, last_message_id, last_message_at, unread_count)
         SELECT $1, $2,
             (SELECT id FROM messages
                 WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
                 ORDER BY created_at DESC, id DESC LIMIT 1),
             (SELECT created_at FROM messages
                 WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
                 ORDER BY created_at DESC, id DESC LIMIT 1),
             (SELECT COUNT(*) FROM messages
                 WHERE recipient_id=$1 AND sender_id=$2 AND is_read = FALSE)
         ON CONFLICT (owner_id, counterpart_id) DO UPDATE SET
             last_message_id = EXCLUDED.last_message_id,
             last_message_at = EXCLUDED.last_message_at,
             unread_count = EXCLUDED.unread_count
         RETURNING owner_id, counterpart_id, last_message_id, last_message_at, unread_count`,
		ownerID, counterpartID).
		StructScan(&summary)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	return summary, nil
}
