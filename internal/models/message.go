package models

import (
	"time"

	"github.com/lib/pq"
)

// Message types accepted by the delivery pipeline.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeImage  = "image"
	MessageTypeVoice  = "voice"
	MessageTypeSystem = "system"
)

// Message is a durable direct message between two users. Immutable after
// insert except for the is_read flag, which only ever flips false → true.
type Message struct {
	ID          int64          `db:"id" json:"id"`
	SenderID    int64          `db:"sender_id" json:"sender_id"`
	RecipientID int64          `db:"recipient_id" json:"recipient_id"`
	Content     string         `db:"content" json:"content"`
	MessageType string         `db:"message_type" json:"message_type"`
	Attachments pq.StringArray `db:"attachments" json:"attachments,omitempty"`
	ReplyToID   *int64         `db:"reply_to_id" json:"reply_to_id,omitempty"`
	IsRead      bool           `db:"is_read" json:"is_read"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeVoice, MessageTypeSystem:
		return true
	}
	return false
}
