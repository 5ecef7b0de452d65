package models

import "time"

// Client → server event types.
const (
	EventAuthenticate = "authenticate"
	EventSendMessage  = "send_message"
	EventStartTyping  = "start_typing"
	EventStopTyping   = "stop_typing"
	EventMarkRead     = "mark_read"
)

// Server → client event types.
const (
	EventOnlineUsers = "online_users"
	EventMessageSent = "message_sent"
	EventNewMessage  = "new_message"
	EventMessageRead = "message_read"
	EventUserTyping  = "user_typing"
	EventUserStatus  = "user_status"
	EventDrain       = "drain"
	EventError       = "error"
)

// ClientEvent is a single inbound websocket frame. Fields are populated
// depending on Type; unknown fields are ignored.
type ClientEvent struct {
	Type        string   `json:"type"`
	Token       string   `json:"token,omitempty"`
	RecipientID int64    `json:"recipient_id,omitempty"`
	Content     string   `json:"content,omitempty"`
	MessageType string   `json:"message_type,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	ReplyToID   *int64   `json:"reply_to_id,omitempty"`
	MessageID   int64    `json:"message_id,omitempty"`
}

// ServerEvent is broadcast through websockets. A flat envelope keeps the
// client decode path trivial; only the fields for Type are set.
type ServerEvent struct {
	Type             string           `json:"type"`
	Message          *Message         `json:"message,omitempty"`
	MessageID        int64            `json:"message_id,omitempty"`
	ReadAt           *time.Time       `json:"read_at,omitempty"`
	UserID           int64            `json:"user_id,omitempty"`
	IsTyping         *bool            `json:"is_typing,omitempty"`
	IsOnline         *bool            `json:"is_online,omitempty"`
	LastSeenAt       *time.Time       `json:"last_seen_at,omitempty"`
	Users            []PresenceRecord `json:"users,omitempty"`
	ReconnectAfterMs int64            `json:"reconnect_after_ms,omitempty"`
	Error            *ErrorDetail     `json:"error,omitempty"`
}

// ErrorDetail is the websocket-safe error body, scoped to one connection.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TypingEvent builds a user_typing event for the counterpart side.
func TypingEvent(userID int64, isTyping bool) ServerEvent {
	return ServerEvent{Type: EventUserTyping, UserID: userID, IsTyping: &isTyping}
}

// StatusEvent builds a user_status event from a presence record.
func StatusEvent(record PresenceRecord) ServerEvent {
	online := record.IsOnline()
	return ServerEvent{
		Type:       EventUserStatus,
		UserID:     record.UserID,
		IsOnline:   &online,
		LastSeenAt: record.LastSeenAt,
	}
}
