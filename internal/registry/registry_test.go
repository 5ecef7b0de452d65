package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/models"
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

func TestRegisterUnregisterTransitions(t *testing.T) {
	reg := New()

	var online, offline []int64
	reg.OnTransition(
		func(userID int64, _ time.Time) { online = append(online, userID) },
		func(userID int64, _ time.Time) { offline = append(offline, userID) },
	)

	first := newFakeConn("c1", 7)
	second := newFakeConn("c2", 7)

	reg.Register(first)
	require.True(t, reg.IsOnline(7))
	assert.Equal(t, []int64{7}, online)

	// A second tab does not re-fire the online transition.
	reg.Register(second)
	assert.Equal(t, []int64{7}, online)
	assert.Equal(t, 2, reg.ConnectionCount(7))

	reg.Unregister("c1")
	assert.True(t, reg.IsOnline(7))
	assert.Empty(t, offline)

	reg.Unregister("c2")
	assert.False(t, reg.IsOnline(7))
	assert.Equal(t, []int64{7}, offline)
}

func TestUnregisterUnknownConnIsNoop(t *testing.T) {
	reg := New()
	reg.Unregister("missing")
	assert.Empty(t, reg.ListOnline())
}

func TestListOnline(t *testing.T) {
	reg := New()
	reg.Register(newFakeConn("a", 3))
	reg.Register(newFakeConn("b", 1))
	reg.Register(newFakeConn("c", 2))

	assert.Equal(t, []int64{1, 2, 3}, reg.ListOnline())
}

func TestSendToUserFansOutToAllConnections(t *testing.T) {
	reg := New()
	first := newFakeConn("c1", 9)
	second := newFakeConn("c2", 9)
	other := newFakeConn("c3", 10)
	reg.Register(first)
	reg.Register(second)
	reg.Register(other)

	event := models.ServerEvent{Type: models.EventNewMessage}
	reg.SendToUser(9, event)

	require.Len(t, first.delivered(), 1)
	require.Len(t, second.delivered(), 1)
	assert.Empty(t, other.delivered())
}

func TestSendToOfflineUserIsNoop(t *testing.T) {
	reg := New()
	reg.SendToUser(42, models.ServerEvent{Type: models.EventNewMessage})
}

func TestConcurrentRegisterUnregisterKeepsCountConsistent(t *testing.T) {
	reg := New()

	var transitions sync.Map
	reg.OnTransition(
		func(userID int64, _ time.Time) { transitions.Store(userID, true) },
		func(userID int64, _ time.Time) {},
	)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("conn-%d", n), 1)
			reg.Register(conn)
			reg.Unregister(conn.ID())
		}(i)
	}
	wg.Wait()

	assert.False(t, reg.IsOnline(1))
	assert.Equal(t, 0, reg.ConnectionCount(1))
}
