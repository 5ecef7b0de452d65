package typing

import (
	"sync"
	"time"

	"realtime-service/internal/observability"
)

// EmitFunc delivers a typing transition to the recipient's connections.
type EmitFunc func(senderID, recipientID int64, isTyping bool)

type pairKey struct {
	senderID    int64
	recipientID int64
}

type entry struct {
	timer    *time.Timer
	deadline time.Time
}

// Debouncer collapses bursts of start_typing signals per (sender,
// recipient) pair into a single active state with an idle timeout.
// Each pair owns one cancellable timer, so memory stays bounded under
// high keystroke rates.
type Debouncer struct {
	mu     sync.Mutex
	active map[pairKey]*entry
	idle   time.Duration
	emit   EmitFunc
	now    func() time.Time
}

// NewDebouncer constructs a debouncer with the given idle window.
func NewDebouncer(idle time.Duration, emit EmitFunc) *Debouncer {
	return &Debouncer{
		active: make(map[pairKey]*entry),
		idle:   idle,
		emit:   emit,
		now:    time.Now,
	}
}

// Signal registers typing activity. The first signal for a pair emits
// is_typing=true; subsequent signals inside the idle window only refresh
// the expiry.
func (d *Debouncer) Signal(senderID, recipientID int64) {
	key := pairKey{senderID: senderID, recipientID: recipientID}

	d.mu.Lock()
	if e, ok := d.active[key]; ok {
		e.deadline = d.now().Add(d.idle)
		e.timer.Reset(d.idle)
		d.mu.Unlock()
		observability.IncTypingSuppressed()
		return
	}

	e := &entry{deadline: d.now().Add(d.idle)}
	e.timer = time.AfterFunc(d.idle, func() {
		d.expire(key)
	})
	d.active[key] = e
	d.mu.Unlock()

	d.emit(senderID, recipientID, true)
}

// Stop force-expires the pair's typing state, emitting is_typing=false if
// it was active. Called on explicit stop_typing and on message send.
func (d *Debouncer) Stop(senderID, recipientID int64) {
	key := pairKey{senderID: senderID, recipientID: recipientID}

	d.mu.Lock()
	e, ok := d.active[key]
	if ok {
		e.timer.Stop()
		delete(d.active, key)
	}
	d.mu.Unlock()

	if ok {
		d.emit(senderID, recipientID, false)
	}
}

// expire fires when the idle window elapses. A fire that raced with a
// refresh sees an extended deadline and reschedules instead of expiring.
func (d *Debouncer) expire(key pairKey) {
	d.mu.Lock()
	e, ok := d.active[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	if remaining := e.deadline.Sub(d.now()); remaining > 0 {
		e.timer.Reset(remaining)
		d.mu.Unlock()
		return
	}
	delete(d.active, key)
	d.mu.Unlock()

	d.emit(key.senderID, key.recipientID, false)
}

// ActivePairs reports how many pairs currently hold typing state.
func (d *Debouncer) ActivePairs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}
