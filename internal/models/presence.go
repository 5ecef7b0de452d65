package models

import "time"

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceRecord is the derived online state for a user. Status is online
// iff the registry holds at least one live connection for the user.
type PresenceRecord struct {
	UserID     int64      `json:"user_id"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// IsOnline reports whether the record marks the user online.
func (p PresenceRecord) IsOnline() bool {
	return p.Status == StatusOnline
}
