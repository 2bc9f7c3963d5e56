package replicate

import "testing"

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.Publish("write_applied", map[string]any{"op": "buy"})

	select {
	case ev := <-ch:
		if ev.Kind != "write_applied" {
			t.Fatalf("got kind %q, want write_applied", ev.Kind)
		}
	default:
		t.Fatalf("expected an event to be available immediately")
	}
}

func TestHubPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	hub := NewHub()
	_, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	// Flood well past the subscriber channel's buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("flood", nil)
		}
		close(done)
	}()
	<-done
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}
