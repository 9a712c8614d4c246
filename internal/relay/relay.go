// Package relay broadcasts engine events to any attached front-end context
// (watch view, CLI waiters, a native-messaging host). Delivery is strictly
// best-effort: a missing or slow subscriber can never fail the publisher,
// since the absence of a listener is an expected condition.
package relay

import (
	"sync"

	"github.com/dlbridge/dlbridge/internal/badge"
	"github.com/dlbridge/dlbridge/internal/state"
)

// ServerDiscoveredMsg announces a successful discovery so open contexts can
// refresh displayed server info without polling.
type ServerDiscoveredMsg struct {
	Port int `json:"port"`
}

// ServerLostMsg announces that the server stopped answering.
type ServerLostMsg struct{}

// QueueUpdatedMsg carries the post-reconciliation queue and active state.
type QueueUpdatedMsg struct {
	Queue  []state.Download          `json:"queue"`
	Active map[string]state.Download `json:"active"`
}

// BadgeUpdatedMsg carries a freshly projected badge.
type BadgeUpdatedMsg struct {
	Badge badge.Projection `json:"badge"`
}

// HistoryUpdatedMsg signals that the history collection changed.
type HistoryUpdatedMsg struct{}

const subscriberBuffer = 32

// Relay fans events out to subscriber channels.
type Relay struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan any
	logf   func(format string, args ...any)
}

// New creates a relay. logf receives low-severity notes about dropped
// events; pass nil to discard them.
func New(logf func(format string, args ...any)) *Relay {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Relay{subs: make(map[int]chan any), logf: logf}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the context goes away; it closes the channel.
func (r *Relay) Subscribe() (<-chan any, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan any, subscriberBuffer)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers msg to every subscriber. It never blocks and never
// returns an error: a subscriber whose buffer is full has the message
// dropped, and having no subscribers at all is not a failure.
func (r *Relay) Publish(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.subs) == 0 {
		r.logf("relay: no receiver for %T", msg)
		return
	}
	for id, ch := range r.subs {
		select {
		case ch <- msg:
		default:
			r.logf("relay: subscriber %d full, dropping %T", id, msg)
		}
	}
}

// Subscribers reports the current listener count.
func (r *Relay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
