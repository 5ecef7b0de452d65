package registry

import (
	"sort"
	"sync"
	"time"

	"realtime-service/internal/models"
)

// Conn is the minimal surface the registry needs from a live connection.
// Deliver must never block; implementations queue outbound events.
type Conn interface {
	ID() string
	UserID() int64
	Deliver(event models.ServerEvent) error
}

// TransitionFunc observes a user's presence transition (empty ↔ non-empty
// connection set). Invoked outside registry locks, once per transition.
type TransitionFunc func(userID int64, at time.Time)

// Registry maps user ids to their open connections. The outer map is
// guarded by a short RWMutex; mutation of a user's connection set is
// serialized by that user's entry lock, so concurrent register/unregister
// for the same user never lose count updates.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]*userEntry
	index map[string]int64 // connection id → user id

	onOnline  TransitionFunc
	onOffline TransitionFunc
}

type userEntry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		users: make(map[int64]*userEntry),
		index: make(map[string]int64),
	}
}

// OnTransition installs the presence callbacks. Must be called before any
// connection registers.
func (r *Registry) OnTransition(online, offline TransitionFunc) {
	r.onOnline = online
	r.onOffline = offline
}

// Register adds a connection for its user. Fires the online transition if
// this is the user's first connection.
func (r *Registry) Register(conn Conn) {
	userID := conn.UserID()

	// Lock order is always registry then entry, so an entry acquired here
	// cannot be pruned concurrently by Unregister.
	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok {
		entry = &userEntry{conns: make(map[string]Conn)}
		r.users[userID] = entry
	}
	r.index[conn.ID()] = userID
	entry.mu.Lock()
	r.mu.Unlock()

	wasEmpty := len(entry.conns) == 0
	entry.conns[conn.ID()] = conn
	entry.mu.Unlock()

	if wasEmpty && r.onOnline != nil {
		r.onOnline(userID, time.Now())
	}
}

// Unregister removes a connection by id. Fires the offline transition if
// this was the user's last connection.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	userID, ok := r.index[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.index, connID)
	entry := r.users[userID]
	if entry == nil {
		r.mu.Unlock()
		return
	}
	entry.mu.Lock()
	r.mu.Unlock()

	delete(entry.conns, connID)
	nowEmpty := len(entry.conns) == 0
	entry.mu.Unlock()

	if nowEmpty {
		r.mu.Lock()
		entry.mu.Lock()
		if len(entry.conns) == 0 {
			delete(r.users, userID)
		} else {
			nowEmpty = false
		}
		entry.mu.Unlock()
		r.mu.Unlock()
	}

	if nowEmpty && r.onOffline != nil {
		r.onOffline(userID, time.Now())
	}
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID int64) bool {
	return r.ConnectionCount(userID) > 0
}

// ConnectionCount returns the number of live connections for a user.
func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	entry := r.users[userID]
	r.mu.RUnlock()
	if entry == nil {
		return 0
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.conns)
}

// ListOnline returns the set of users with at least one live connection.
func (r *Registry) ListOnline() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Connections snapshots the user's live connections.
func (r *Registry) Connections(userID int64) []Conn {
	r.mu.RLock()
	entry := r.users[userID]
	r.mu.RUnlock()
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	conns := make([]Conn, 0, len(entry.conns))
	for _, c := range entry.conns {
		conns = append(conns, c)
	}
	return conns
}

// SendToUser fans an event out to every open connection of a user.
// Delivery is best-effort; a failed enqueue never propagates upstream.
func (r *Registry) SendToUser(userID int64, event models.ServerEvent) {
	for _, conn := range r.Connections(userID) {
		_ = conn.Deliver(event)
	}
}
