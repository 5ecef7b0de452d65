package models

import "time"

// ConversationSummary is a per-(owner, counterpart) projection over Message.
// It carries no independent authority and can be rebuilt from history.
type ConversationSummary struct {
	OwnerID       int64     `db:"owner_id" json:"owner_id"`
	CounterpartID int64     `db:"counterpart_id" json:"counterpart_id"`
	LastMessageID int64     `db:"last_message_id" json:"last_message_id"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int       `db:"unread_count" json:"unread_count"`
}
