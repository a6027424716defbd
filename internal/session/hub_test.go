package session

import (
	"sync"
	"testing"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	h := NewHub()

	a, disposeA := h.Subscribe()
	b, disposeB := h.Subscribe()
	defer disposeA()
	defer disposeB()

	h.Publish(Event{Type: EventOutput, SessionID: "sess_x", Data: []byte("hi")})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		ev := <-ch
		if ev.SessionID != "sess_x" || string(ev.Data) != "hi" {
			t.Errorf("subscriber %s got %+v", name, ev)
		}
	}
}

func TestDisposeStopsDeliveryAndClosesChannel(t *testing.T) {
	h := NewHub()

	ch, dispose := h.Subscribe()
	if h.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.SubscriberCount())
	}

	dispose()
	dispose() // safe to call twice

	if h.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after dispose, got %d", h.SubscriberCount())
	}

	// Publishing after dispose must not panic or deliver.
	h.Publish(Event{Type: EventOutput, SessionID: "sess_x"})

	if _, open := <-ch; open {
		t.Error("disposed channel still delivered an event")
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := NewHub()

	_, dispose := h.Subscribe() // never drained
	defer dispose()

	// Overfill the buffer; extra events are dropped, not queued.
	for i := 0; i < defaultSubscriberBuffer*2; i++ {
		h.Publish(Event{Type: EventOutput, SessionID: "sess_slow"})
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, dispose := h.Subscribe()
			h.Publish(Event{Type: EventBusy, SessionID: "sess_c"})
			select {
			case <-ch:
			default:
			}
			dispose()
		}()
	}
	wg.Wait()

	if h.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.SubscriberCount())
	}
}
