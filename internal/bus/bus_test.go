package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDrain_DeliversToAllSubscribers(t *testing.T) {
	b := NewMessageBus()
	var got []string
	b.Subscribe(func(n *Notification) { got = append(got, "a:"+n.Owner) })
	b.Subscribe(func(n *Notification) { got = append(got, "b:"+n.Owner) })

	b.Publish(&Notification{Owner: "alice", Kind: KindReviewRequested})
	if b.Size() != 1 {
		t.Fatalf("expected 1 queued, got %d", b.Size())
	}
	if n := b.Drain(); n != 1 {
		t.Fatalf("expected 1 delivered, got %d", n)
	}
	if len(got) != 2 || got[0] != "a:alice" || got[1] != "b:alice" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestDispatch(t *testing.T) {
	b := NewMessageBus()
	var mu sync.Mutex
	done := make(chan struct{})
	b.Subscribe(func(n *Notification) {
		mu.Lock()
		defer mu.Unlock()
		if n.Timestamp.IsZero() {
			t.Errorf("timestamp not set")
		}
		close(done)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Dispatch(ctx) }()

	b.Publish(&Notification{Owner: "bob", Kind: KindEstablished})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not dispatched")
	}
}

func TestPublish_DropsWhenFull(t *testing.T) {
	b := NewMessageBus()
	for i := 0; i < 150; i++ {
		b.Publish(&Notification{Owner: "alice"})
	}
	if b.Size() != 100 {
		t.Fatalf("expected queue capped at 100, got %d", b.Size())
	}
}

func TestDrain_SubscribeDuringDelivery(t *testing.T) {
	b := NewMessageBus()
	late := 0
	b.Subscribe(func(n *Notification) {
		b.Subscribe(func(*Notification) { late++ })
	})

	b.Publish(&Notification{Owner: "alice", Kind: KindPaused})
	b.Drain()
	if late != 0 {
		t.Fatalf("subscriber added during delivery got the same notification")
	}
	b.Publish(&Notification{Owner: "alice", Kind: KindPaused})
	b.Drain()
	if late != 1 {
		t.Fatalf("expected late subscriber to get the next notification, got %d", late)
	}
}
