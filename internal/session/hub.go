package session

import (
	"sync"

	"github.com/vterm/vterm/backend/internal/shared/id"
)

const defaultSubscriberBuffer = 256

// Hub is the broadcast channel between the Manager and its subscribers
// (WebSocket connections, pollers, tests). Every event carries its session
// id; subscribers filter client-side, so there is no per-session
// subscription protocol to leak.
type Hub struct {
	mu   sync.RWMutex
	subs map[id.SubscriptionID]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[id.SubscriptionID]chan Event),
	}
}

// Subscribe registers a subscriber and returns its event channel together
// with a dispose function. Disposing stops delivery promptly and closes the
// channel; every subscriber must dispose on teardown.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, defaultSubscriberBuffer)
	subID := id.NewSubscriptionID()

	h.mu.Lock()
	h.subs[subID] = ch
	h.mu.Unlock()

	var once sync.Once
	dispose := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, subID)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, dispose
}

// Publish fans an event out to all subscribers. Delivery never blocks the
// publisher: a subscriber with a full buffer drops the event.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up, drop.
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
