// Package bus delivers owner notifications from the orchestrator to the
// channels that subscribed to them.
package bus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Notification kinds.
const (
	KindReviewRequested = "review_requested"
	KindEstablished     = "established"
	KindRejected        = "rejected"
	KindReset           = "reset"
	KindPaused          = "paused"
)

// Notification is a message for one owner about one relation.
type Notification struct {
	Owner       string    `json:"owner"`
	Kind        string    `json:"kind"`
	RelationID  string    `json:"relation_id"`
	Counterpart string    `json:"counterpart,omitempty"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageBus decouples the orchestrator from notification channels.
type MessageBus struct {
	outbound chan *Notification
	subs     []func(*Notification)
	mu       sync.RWMutex
}

// NewMessageBus creates a bus with a bounded queue.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		outbound: make(chan *Notification, 100),
	}
}

// Publish queues a notification. A full queue drops it with a warning.
func (b *MessageBus) Publish(n *Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	select {
	case b.outbound <- n:
	default:
		slog.Warn("Notification queue full, dropping", "owner", n.Owner, "kind", n.Kind, "relation", n.RelationID)
	}
}

// Subscribe registers a callback for every notification.
func (b *MessageBus) Subscribe(callback func(*Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, callback)
}

// Dispatch delivers notifications until ctx is cancelled.
// This should be run as a goroutine.
func (b *MessageBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-b.outbound:
			b.deliver(n)
		}
	}
}

// Drain delivers everything queued and returns the number delivered.
func (b *MessageBus) Drain() int {
	count := 0
	for {
		select {
		case n := <-b.outbound:
			b.deliver(n)
			count++
		default:
			return count
		}
	}
}

// Size returns the number of queued notifications.
func (b *MessageBus) Size() int {
	return len(b.outbound)
}

func (b *MessageBus) deliver(n *Notification) {
	b.mu.RLock()
	callbacks := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, cb := range callbacks {
		cb(n)
	}
}
