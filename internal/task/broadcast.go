package task

import (
	"sync"
	"time"
)

type broadcastState int

const (
	stateIdle broadcastState = iota
	statePending
)

// Broadcaster fans change notifications out to subscribers.
// A deferred notification arms a timer (idle -> pending); further deferred
// notifications while pending are absorbed. An immediate notification cancels
// the pending timer and fires at once.
type Broadcaster struct {
	mu     sync.Mutex
	window time.Duration
	state  broadcastState
	timer  *time.Timer
	gen    uint64
	closed bool

	subs   map[uint64]func()
	nextID uint64
}

// NewBroadcaster creates a broadcaster that coalesces deferred notifications over window.
func NewBroadcaster(window time.Duration) *Broadcaster {
	return &Broadcaster{window: window, subs: make(map[uint64]func())}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Broadcaster) Subscribe(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Notify schedules a notification, or delivers it synchronously when immediate is set.
func (b *Broadcaster) Notify(immediate bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if immediate || b.window <= 0 {
		b.cancelLocked()
		subs := b.snapshotLocked()
		b.mu.Unlock()
		deliver(subs)
		return
	}
	if b.state == statePending {
		b.mu.Unlock()
		return
	}
	b.state = statePending
	gen := b.gen
	b.timer = time.AfterFunc(b.window, func() { b.fire(gen) })
	b.mu.Unlock()
}

func (b *Broadcaster) fire(gen uint64) {
	b.mu.Lock()
	if b.state != statePending || b.gen != gen || b.closed {
		b.mu.Unlock()
		return
	}
	b.state = stateIdle
	b.timer = nil
	b.gen++
	subs := b.snapshotLocked()
	b.mu.Unlock()
	deliver(subs)
}

// Pending reports whether a deferred notification is armed.
func (b *Broadcaster) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == statePending
}

// Close drops any pending notification and ignores later ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelLocked()
	b.closed = true
}

func (b *Broadcaster) cancelLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.state = stateIdle
	b.gen++
}

func (b *Broadcaster) snapshotLocked() []func() {
	out := make([]func(), 0, len(b.subs))
	for _, fn := range b.subs {
		out = append(out, fn)
	}
	return out
}

func deliver(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}
