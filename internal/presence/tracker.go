package presence

import (
	"context"
	"log"
	"time"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/registry"
	"realtime-service/internal/repositories"
)

// Tracker derives online/offline state from registry transitions and fans
// user_status events out to users who share a conversation with the
// subject. Status notifications are best-effort; failures are dropped.
type Tracker struct {
	registry      *registry.Registry
	conversations repositories.ConversationRepository
	lastSeen      LastSeenStore
}

// NewTracker wires a tracker into the registry's transition callbacks.
func NewTracker(reg *registry.Registry, conversations repositories.ConversationRepository, lastSeen LastSeenStore) *Tracker {
	t := &Tracker{
		registry:      reg,
		conversations: conversations,
		lastSeen:      lastSeen,
	}
	reg.OnTransition(t.handleOnline, t.handleOffline)
	return t
}

// Record returns the derived presence record for a user.
func (t *Tracker) Record(ctx context.Context, userID int64) models.PresenceRecord {
	record := models.PresenceRecord{UserID: userID, Status: models.StatusOffline}
	if t.registry.IsOnline(userID) {
		record.Status = models.StatusOnline
	}
	if at, ok, err := t.lastSeen.Get(ctx, userID); err == nil && ok {
		seen := at
		record.LastSeenAt = &seen
	}
	return record
}

// Snapshot returns presence records for the user's conversation
// counterparts, sent to a newly-active connection as online_users.
func (t *Tracker) Snapshot(ctx context.Context, userID int64) []models.PresenceRecord {
	counterparts, err := t.conversations.ListCounterparts(ctx, userID)
	if err != nil {
		log.Printf("presence snapshot: list counterparts for user %d: %v", userID, err)
		return nil
	}
	records := make([]models.PresenceRecord, 0, len(counterparts))
	for _, id := range counterparts {
		records = append(records, t.Record(ctx, id))
	}
	return records
}

func (t *Tracker) handleOnline(userID int64, at time.Time) {
	ctx := context.Background()
	if err := t.lastSeen.Touch(ctx, userID, at); err != nil {
		log.Printf("presence: touch last seen for user %d: %v", userID, err)
	}
	observability.IncPresenceTransition("online")
	t.broadcast(ctx, models.PresenceRecord{UserID: userID, Status: models.StatusOnline})
}

func (t *Tracker) handleOffline(userID int64, at time.Time) {
	ctx := context.Background()
	if err := t.lastSeen.Touch(ctx, userID, at); err != nil {
		log.Printf("presence: touch last seen for user %d: %v", userID, err)
	}
	observability.IncPresenceTransition("offline")
	seen := at
	t.broadcast(ctx, models.PresenceRecord{UserID: userID, Status: models.StatusOffline, LastSeenAt: &seen})
}

// broadcast notifies the subject's counterparts, not the whole user base,
// keeping fan-out bounded by conversation membership.
func (t *Tracker) broadcast(ctx context.Context, record models.PresenceRecord) {
	counterparts, err := t.conversations.ListCounterparts(ctx, record.UserID)
	if err != nil {
		log.Printf("presence broadcast: list counterparts for user %d: %v", record.UserID, err)
		return
	}
	event := models.StatusEvent(record)
	for _, id := range counterparts {
		t.registry.SendToUser(id, event)
	}
}
