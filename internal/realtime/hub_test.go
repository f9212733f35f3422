package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestClient(hub *Hub, channel string) *Client {
	return NewClient(hub, channel, nil)
}

func TestPublishReachesChannelSubscribersOnly(t *testing.T) {
	hub := newTestHub()

	a := newTestClient(hub, "token-a")
	b := newTestClient(hub, "token-b")
	hub.Subscribe("token-a", a)
	hub.Subscribe("token-b", b)

	hub.Publish("token-a", BalanceUpdate{Type: "balance_update", StampCount: 3})

	select {
	case msg := <-a.send:
		var update BalanceUpdate
		if err := json.Unmarshal(msg, &update); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if update.StampCount != 3 {
			t.Errorf("stamp_count = %d, want 3", update.StampCount)
		}
	default:
		t.Fatal("subscriber on token-a received nothing")
	}

	select {
	case msg := <-b.send:
		t.Errorf("subscriber on token-b received %s", msg)
	default:
	}
}

func TestPublishToEmptyChannel(t *testing.T) {
	hub := newTestHub()
	// No subscribers: message is simply dropped.
	hub.Publish("nobody-home", BalanceUpdate{Type: "balance_update"})
}

func TestUnsubscribePrunesChannel(t *testing.T) {
	hub := newTestHub()
	c := newTestClient(hub, "token-a")

	hub.Subscribe("token-a", c)
	if n := hub.SubscriberCount("token-a"); n != 1 {
		t.Fatalf("subscriber count = %d, want 1", n)
	}

	hub.Unsubscribe("token-a", c)
	if n := hub.SubscriberCount("token-a"); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}

	// Send channel is closed so the write pump exits.
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestPublishSkipsSlowSubscriber(t *testing.T) {
	hub := newTestHub()
	c := newTestClient(hub, "token-a")
	hub.Subscribe("token-a", c)

	// Fill the buffer; further publishes must not block.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Publish("token-a", BalanceUpdate{StampCount: i})
	}

	if n := len(c.send); n != sendBufferSize {
		t.Errorf("buffered %d messages, want %d", n, sendBufferSize)
	}
}
