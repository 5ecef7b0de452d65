package receipts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/registry"
	"realtime-service/internal/repositories"
)

// Reconciler records read receipts idempotently and propagates them to the
// original sender's connections.
type Reconciler struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	registry      *registry.Registry
}

// NewReconciler constructs a Reconciler.
func NewReconciler(messages repositories.MessageRepository, conversations repositories.ConversationRepository, reg *registry.Registry) *Reconciler {
	return &Reconciler{
		messages:      messages,
		conversations: conversations,
		registry:      reg,
	}
}

// MarkRead flips a message to read on behalf of its recipient. Re-marking
// an already-read message is a successful no-op: no second emission, no
// second decrement. A message that does not exist and a message addressed
// to someone else are indistinguishable to the caller; the sender, who
// already knows the message exists, gets unauthorized instead.
func (r *Reconciler) MarkRead(ctx context.Context, readerID, messageID int64) (changed bool, err error) {
	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return false, fmt.Errorf("%w: message %d", models.ErrNotFound, messageID)
		}
		return false, err
	}
	if msg.SenderID == readerID {
		return false, fmt.Errorf("%w: message %d was sent by the reader", models.ErrUnauthorized, messageID)
	}
	if msg.RecipientID != readerID {
		// Same shape as a missing message so existence is never revealed.
		return false, fmt.Errorf("%w: message %d", models.ErrNotFound, messageID)
	}
	if msg.IsRead {
		return false, nil
	}

	first, err := r.messages.MarkMessageRead(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !first {
		// Lost a race with another session of the same reader; the winner
		// already emitted and decremented.
		return false, nil
	}

	if err := r.conversations.ApplyRead(ctx, readerID, msg.SenderID); err != nil {
		log.Printf("receipts: unread decrement for message %d: %v", messageID, err)
		observability.IncSummaryUpdateError()
	}

	readAt := time.Now().UTC()
	r.registry.SendToUser(msg.SenderID, models.ServerEvent{
		Type:      models.EventMessageRead,
		MessageID: messageID,
		ReadAt:    &readAt,
	})

	observability.IncReadReceipt()
	observability.PublishReadEvent(ctx, "message.read", messageID, readerID, readAt)

	return true, nil
}
