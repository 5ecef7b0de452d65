package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/models"
)

// newSocketPair upgrades a real websocket and returns both ends.
func newSocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		sock, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- sock
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-serverCh:
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side of socket never arrived")
		return nil, nil
	}
}

func readServerEvent(t *testing.T, sock *websocket.Conn) models.ServerEvent {
	t.Helper()
	require.NoError(t, sock.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := sock.ReadMessage()
	require.NoError(t, err)
	var event models.ServerEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestConnLifecycleTransitions(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConn(server, time.Minute, 3*time.Second)
	defer conn.Close()

	assert.Equal(t, StateConnecting, conn.State())
	assert.Equal(t, int64(0), conn.UserID())

	require.NoError(t, conn.Authenticate(7))
	assert.Equal(t, StateAuthenticated, conn.State())
	assert.Equal(t, int64(7), conn.UserID())

	// Authenticating twice is a protocol violation.
	assert.Error(t, conn.Authenticate(8))

	require.NoError(t, conn.Activate())
	assert.Equal(t, StateActive, conn.State())
	assert.Error(t, conn.Activate())
}

func TestConnActivateRequiresAuthentication(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConn(server, time.Minute, 3*time.Second)
	defer conn.Close()

	assert.Error(t, conn.Activate())
	assert.Equal(t, StateConnecting, conn.State())
}

func TestConnFailsWhenAuthGraceExpires(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConn(server, 30*time.Millisecond, 3*time.Second)

	assert.Eventually(t, func() bool {
		return conn.State() == StateFailed
	}, time.Second, 5*time.Millisecond)

	// The socket is gone; the client's next read errors out.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)

	// A late authenticate cannot resurrect the connection.
	assert.Error(t, conn.Authenticate(7))
}

func TestConnAuthenticateCancelsGraceTimer(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConn(server, 30*time.Millisecond, 3*time.Second)
	defer conn.Close()

	require.NoError(t, conn.Authenticate(7))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateAuthenticated, conn.State())
}

func TestConnDeliverWritesFrame(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConn(server, time.Minute, 3*time.Second)
	defer conn.Close()

	require.NoError(t, conn.Authenticate(7))
	require.NoError(t, conn.Activate())

	msg := models.Message{ID: 3, SenderID: 1, RecipientID: 7, Content: "hi"}
	require.NoError(t, conn.Deliver(models.ServerEvent{Type: models.EventNewMessage, Message: &msg}))

	event := readServerEvent(t, client)
	assert.Equal(t, models.EventNewMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, int64(3), event.Message.ID)
}

func TestConnFailFlushesQueuedError(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConn(server, time.Minute, 3*time.Second)

	require.NoError(t, conn.Deliver(models.ServerEvent{
		Type:  models.EventError,
		Error: &models.ErrorDetail{Code: models.CodeAuthenticationFailed, Message: "invalid credential"},
	}))
	conn.Fail()
	assert.Equal(t, StateFailed, conn.State())

	// The error queued before the failure still reaches the client.
	event := readServerEvent(t, client)
	require.Equal(t, models.EventError, event.Type)
	require.NotNil(t, event.Error)
	assert.Equal(t, models.CodeAuthenticationFailed, event.Error.Code)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)

	// A Close racing the flush must not preempt it; state stays Failed.
	conn.Close()
	assert.Equal(t, StateFailed, conn.State())
}

func TestConnDeliverAfterCloseRejected(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConn(server, time.Minute, 3*time.Second)

	conn.Close()
	assert.Equal(t, StateClosed, conn.State())
	assert.Error(t, conn.Deliver(models.ServerEvent{Type: models.EventNewMessage}))

	// Close is idempotent.
	conn.Close()
	assert.Equal(t, StateClosed, conn.State())
}

func TestConnDrainFlushesQueueThenCloses(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConn(server, time.Minute, 1500*time.Millisecond)

	require.NoError(t, conn.Authenticate(7))
	require.NoError(t, conn.Activate())

	require.NoError(t, conn.Deliver(models.ServerEvent{Type: models.EventMessageSent}))
	require.NoError(t, conn.Deliver(models.ServerEvent{Type: models.EventMessageRead, MessageID: 4}))
	conn.Drain()

	// Draining stops accepting new outbound events.
	assert.Error(t, conn.Deliver(models.ServerEvent{Type: models.EventNewMessage}))

	// Queued events land before the drain notice.
	assert.Equal(t, models.EventMessageSent, readServerEvent(t, client).Type)
	assert.Equal(t, models.EventMessageRead, readServerEvent(t, client).Type)

	drain := readServerEvent(t, client)
	assert.Equal(t, models.EventDrain, drain.Type)
	assert.Equal(t, int64(1500), drain.ReconnectAfterMs)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return conn.State() == StateClosed
	}, time.Second, 5*time.Millisecond)
}

func TestConnStateStrings(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "failed", StateFailed.String())
}
