package ws

import "time"

// ConnInfo carries per-connection request metadata for observability.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
