// Package event is the internal publish/subscribe fabric that decouples
// the capture, error, and metrics engines from the session transport.
// Producers publish typed events; the transport (and tests) subscribe.
package event

import (
	"sync"
	"time"
)

// Kind identifies one event type on the bus.
type Kind string

// Event kinds emitted by the engines.
const (
	RequestRecorded  Kind = "request-recorded"
	RequestCompleted Kind = "request-completed"
	ErrorTracked     Kind = "error-tracked"
	NewErrorType     Kind = "new-error-type"
	ErrorSpike       Kind = "error-spike"
	MetricsAlert     Kind = "metrics-alert"
	MetricsSnapshot  Kind = "metrics-snapshot"
)

// Event is one published occurrence. Payload is the engine-specific
// value (e.g. *errtrack.Group, capture.RecordedRequest).
type Event struct {
	Kind    Kind
	Time    time.Time
	Payload any
}

// Handler receives published events. Handlers must not block: the bus
// dispatches synchronously so that per-subscriber ordering matches
// publish order. Slow consumers buffer on their own side.
type Handler func(Event)

type subscriber struct {
	id    int
	kinds map[Kind]bool // nil means all kinds
	fn    Handler
}

// Bus fans events out to registered subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for the given kinds. An empty kind list
// subscribes to every event. The returned function unregisters the
// handler; calling it more than once is harmless.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscriber{id: b.nextID, fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every matching subscriber in
// registration order. The subscriber list is snapshotted first so a
// handler may subscribe or unsubscribe without deadlocking.
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{Kind: kind, Time: time.Now(), Payload: payload}

	b.mu.RLock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		if s.kinds == nil || s.kinds[kind] {
			s.fn(ev)
		}
	}
}

// SubscriberCount reports the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
