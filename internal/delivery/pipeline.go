package delivery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/registry"
	"realtime-service/internal/repositories"
	"realtime-service/internal/typing"
)

// SendRequest is one outbound message as issued by a client connection.
type SendRequest struct {
	RecipientID int64
	Content     string
	MessageType string
	Attachments []string
	ReplyToID   *int64
}

// Pipeline persists outbound messages and fans them out. Delivery order to
// a recipient matches persistence order for a given sender connection: the
// session read loop calls Send serially and Deliver enqueues before Send
// returns.
type Pipeline struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	registry      *registry.Registry
	typing        *typing.Debouncer
}

// NewPipeline constructs a Pipeline.
func NewPipeline(messages repositories.MessageRepository, conversations repositories.ConversationRepository, reg *registry.Registry, debouncer *typing.Debouncer) *Pipeline {
	return &Pipeline{
		messages:      messages,
		conversations: conversations,
		registry:      reg,
		typing:        debouncer,
	}
}

// Send validates, persists and fans out one message.
//
// Persistence failure aborts the whole operation and surfaces
// delivery_failed to the sender only; nothing reaches the recipient. An
// offline recipient is still a successful send — the message is durable
// and surfaces on the next conversation fetch.
func (p *Pipeline) Send(ctx context.Context, senderID int64, req SendRequest) (models.Message, error) {
	start := time.Now()

	if err := validate(senderID, &req); err != nil {
		return models.Message{}, err
	}

	// A message ends the sender's typing state as if the idle timer fired.
	if p.typing != nil {
		p.typing.Stop(senderID, req.RecipientID)
	}

	msg, err := p.messages.InsertMessage(ctx, senderID, req.RecipientID, req.Content, req.MessageType, req.Attachments, req.ReplyToID)
	if err != nil {
		observability.IncDeliveryOutcome("failed")
		return models.Message{}, fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}

	// The projection is repairable from history; a failed update must not
	// fail a durably stored send.
	if err := p.conversations.ApplySend(ctx, msg); err != nil {
		log.Printf("delivery: conversation summary update for message %d: %v", msg.ID, err)
		observability.IncSummaryUpdateError()
	}

	p.registry.SendToUser(msg.SenderID, models.ServerEvent{Type: models.EventMessageSent, Message: &msg})
	p.registry.SendToUser(msg.RecipientID, models.ServerEvent{Type: models.EventNewMessage, Message: &msg})

	observability.IncDeliveryOutcome("delivered")
	observability.ObserveDeliveryDuration(time.Since(start))
	observability.PublishMessageEvent(ctx, "message.sent", msg)

	return msg, nil
}

func validate(senderID int64, req *SendRequest) error {
	if req.RecipientID == senderID {
		return fmt.Errorf("%w: cannot message yourself", models.ErrInvalidRequest)
	}
	if req.RecipientID <= 0 {
		return fmt.Errorf("%w: missing recipient", models.ErrInvalidRequest)
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}
	if !models.ValidMessageType(req.MessageType) {
		return fmt.Errorf("%w: unknown message type %q", models.ErrInvalidRequest, req.MessageType)
	}
	if req.MessageType == models.MessageTypeText && strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: empty content", models.ErrInvalidRequest)
	}
	return nil
}
