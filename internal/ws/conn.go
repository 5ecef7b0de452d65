package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

// State is the lifecycle state of one connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	outboundQueueSize = 256
	writeTimeout      = 10 * time.Second
	maxFrameSize      = 512 * 1024

	// eventFlushClose is an internal queue marker: the write loop closes
	// the socket once every event queued ahead of it has been written.
	// Never sent on the wire.
	eventFlushClose = "\x00flush_close"
)

var (
	errNotConnecting = errors.New("connection is not awaiting authentication")
	errNotWritable   = errors.New("connection is not accepting events")
)

// Conn owns one websocket and its lifecycle state machine:
// Connecting → Authenticated → Active → Draining → Closed, with Failed
// reachable from any non-Closed state. Outbound events go through a
// buffered queue so a slow reader never blocks the event source; a full
// queue drops the event and counts it.
type Conn struct {
	id   string
	sock *websocket.Conn

	mu     sync.Mutex
	state  State
	userID int64

	out       chan models.ServerEvent
	done      chan struct{}
	authTimer *time.Timer
	closeOnce sync.Once

	reconnectHint time.Duration
}

// NewConn wraps an upgraded socket in Connecting state. The connection
// must authenticate within grace or it fails and closes.
func NewConn(sock *websocket.Conn, grace, reconnectHint time.Duration) *Conn {
	c := &Conn{
		id:            uuid.NewString(),
		sock:          sock,
		state:         StateConnecting,
		out:           make(chan models.ServerEvent, outboundQueueSize),
		done:          make(chan struct{}),
		reconnectHint: reconnectHint,
	}
	sock.SetReadLimit(maxFrameSize)
	c.authTimer = time.AfterFunc(grace, c.authExpired)
	go c.writeLoop()
	return c
}

func (c *Conn) ID() string { return c.id }

// UserID is zero until the connection authenticates.
func (c *Conn) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticate records the verified identity and cancels the grace timer.
func (c *Conn) Authenticate(userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return errNotConnecting
	}
	c.authTimer.Stop()
	c.state = StateAuthenticated
	c.userID = userID
	return nil
}

// Activate moves an authenticated connection into the only state that
// accepts message, typing and read events.
func (c *Conn) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return fmt.Errorf("cannot activate from %s", c.state)
	}
	c.state = StateActive
	return nil
}

// Deliver queues an outbound event. Never blocks: when the queue is full
// the event is dropped and counted, because a slow or dead recipient must
// not delay the sender.
func (c *Conn) Deliver(event models.ServerEvent) error {
	c.mu.Lock()
	writable := c.state == StateConnecting || c.state == StateAuthenticated || c.state == StateActive
	c.mu.Unlock()
	if !writable {
		return errNotWritable
	}

	select {
	case c.out <- event:
		observability.IncWSEvent("outbound", event.Type)
		return nil
	default:
		observability.IncDroppedOutbound()
		return errors.New("outbound queue full")
	}
}

// Drain starts a graceful server-initiated shutdown: inbound events are no
// longer accepted, queued events are flushed, and the client receives a
// reconnect hint before the socket closes.
func (c *Conn) Drain() {
	c.mu.Lock()
	if c.state == StateDraining || c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.state = StateDraining
	c.mu.Unlock()

	event := models.ServerEvent{
		Type:             models.EventDrain,
		ReconnectAfterMs: c.reconnectHint.Milliseconds(),
	}
	// Enqueued behind any outstanding acknowledgments; the write loop
	// closes the socket after flushing it.
	select {
	case c.out <- event:
		observability.IncWSEvent("outbound", event.Type)
	default:
		c.Close()
	}
}

// Fail moves the connection to the terminal Failed state. Events already
// queued, such as the error that explains the failure, are flushed to the
// client before the socket closes.
func (c *Conn) Fail() {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.mu.Unlock()

	select {
	case c.out <- models.ServerEvent{Type: eventFlushClose}:
	default:
		c.shutdown()
	}
}

// Close tears the connection down. Idempotent. A Failed connection is left
// to the write loop, which closes after flushing the failure's error event.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.shutdown()
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.authTimer.Stop()
		close(c.done)
		_ = c.sock.Close()
	})
}

// finish is the write loop's terminal step. The Failed state is preserved;
// anything else becomes Closed.
func (c *Conn) finish() {
	c.mu.Lock()
	if c.state != StateFailed {
		c.state = StateClosed
	}
	c.mu.Unlock()
	c.shutdown()
}

func (c *Conn) authExpired() {
	c.mu.Lock()
	expired := c.state == StateConnecting
	c.mu.Unlock()
	if expired {
		c.Fail()
	}
}

// Read blocks for the next inbound frame.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.sock.ReadMessage()
	return data, err
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.out:
			if event.Type == eventFlushClose {
				_ = c.sock.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "failed"),
					time.Now().Add(writeTimeout),
				)
				c.finish()
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.finish()
				return
			}
			if event.Type == models.EventDrain {
				_ = c.sock.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "draining"),
					time.Now().Add(writeTimeout),
				)
				c.finish()
				return
			}
		}
	}
}
