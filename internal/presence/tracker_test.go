package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
	"realtime-service/internal/registry"
)

type fakeConn struct {
	id     string
	userID int64

	mu     sync.Mutex
	events []models.ServerEvent
}

func newFakeConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.userID }

func (c *fakeConn) Deliver(event models.ServerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) delivered() []models.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ServerEvent, len(c.events))
	copy(out, c.events)
	return out
}

func TestTrackerBroadcastsTransitionsToCounterparts(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	conversationRepo.On("ListCounterparts", mock.Anything, int64(1)).Return([]int64{2, 3}, nil)

	reg := registry.New()
	NewTracker(reg, conversationRepo, NewMemoryLastSeenStore())

	counterpart := newFakeConn("c2", 2)
	stranger := newFakeConn("c9", 9)
	conversationRepo.On("ListCounterparts", mock.Anything, int64(2)).Return([]int64{1}, nil)
	conversationRepo.On("ListCounterparts", mock.Anything, int64(9)).Return([]int64{}, nil)
	reg.Register(counterpart)
	reg.Register(stranger)

	subject := newFakeConn("c1", 1)
	reg.Register(subject)

	events := counterpart.delivered()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserStatus, events[0].Type)
	assert.Equal(t, int64(1), events[0].UserID)
	require.NotNil(t, events[0].IsOnline)
	assert.True(t, *events[0].IsOnline)
	assert.Empty(t, stranger.delivered())

	reg.Unregister("c1")

	events = counterpart.delivered()
	require.Len(t, events, 2)
	require.NotNil(t, events[1].IsOnline)
	assert.False(t, *events[1].IsOnline)
	require.NotNil(t, events[1].LastSeenAt)
}

func TestTrackerSecondConnectionDoesNotRebroadcast(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	conversationRepo.On("ListCounterparts", mock.Anything, mock.Anything).Return([]int64{2}, nil)

	reg := registry.New()
	NewTracker(reg, conversationRepo, NewMemoryLastSeenStore())

	counterpart := newFakeConn("c2", 2)
	reg.Register(counterpart)
	base := len(counterpart.delivered())

	reg.Register(newFakeConn("c1a", 1))
	reg.Register(newFakeConn("c1b", 1))
	assert.Len(t, counterpart.delivered(), base+1)

	reg.Unregister("c1a")
	assert.Len(t, counterpart.delivered(), base+1)

	reg.Unregister("c1b")
	assert.Len(t, counterpart.delivered(), base+2)
}

func TestRecordReflectsRegistryAndLastSeen(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	conversationRepo.On("ListCounterparts", mock.Anything, mock.Anything).Return([]int64{}, nil)

	reg := registry.New()
	store := NewMemoryLastSeenStore()
	tracker := NewTracker(reg, conversationRepo, store)
	ctx := context.Background()

	record := tracker.Record(ctx, 5)
	assert.Equal(t, models.StatusOffline, record.Status)
	assert.Nil(t, record.LastSeenAt)

	conn := newFakeConn("c5", 5)
	reg.Register(conn)

	record = tracker.Record(ctx, 5)
	assert.Equal(t, models.StatusOnline, record.Status)
	assert.True(t, record.IsOnline())

	reg.Unregister("c5")

	record = tracker.Record(ctx, 5)
	assert.Equal(t, models.StatusOffline, record.Status)
	require.NotNil(t, record.LastSeenAt)
	assert.WithinDuration(t, time.Now(), *record.LastSeenAt, time.Second)
}

func TestSnapshotCoversAllCounterparts(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	conversationRepo.On("ListCounterparts", mock.Anything, int64(1)).Return([]int64{2, 3}, nil)
	conversationRepo.On("ListCounterparts", mock.Anything, int64(2)).Return([]int64{1}, nil)

	reg := registry.New()
	tracker := NewTracker(reg, conversationRepo, NewMemoryLastSeenStore())

	reg.Register(newFakeConn("c2", 2))

	records := tracker.Snapshot(context.Background(), 1)
	require.Len(t, records, 2)

	byUser := map[int64]models.PresenceRecord{}
	for _, r := range records {
		byUser[r.UserID] = r
	}
	assert.Equal(t, models.StatusOnline, byUser[2].Status)
	assert.Equal(t, models.StatusOffline, byUser[3].Status)
}

func TestMemoryLastSeenStore(t *testing.T) {
	store := NewMemoryLastSeenStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Touch(ctx, 1, at))

	got, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}
