// Package events publishes relation lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/PairClaw/internal/config"
)

// Event types.
const (
	TypeProposed    = "relation.proposed"
	TypeNegotiated  = "relation.negotiated"
	TypeFeedback    = "relation.feedback"
	TypeEstablished = "relation.established"
	TypeRejected    = "relation.rejected"
	TypeReset       = "relation.reset"
	TypeAgent       = "agent.lifecycle"
)

// Envelope is the wire format for every relation event.
type Envelope struct {
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       Payload   `json:"payload"`
}

// Payload carries relation metadata only; transcripts and private
// information are never published.
type Payload struct {
	RelationID string `json:"relation_id,omitempty"`
	PartyA     string `json:"party_a,omitempty"`
	PartyB     string `json:"party_b,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Status     string `json:"status,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// NewEnvelope stamps p with a correlation ID and time.
func NewEnvelope(typ string, p Payload) Envelope {
	return Envelope{
		Type:          typ,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Payload:       p,
	}
}

// Publisher sends envelopes somewhere.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded envelopes.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// KafkaPublisher writes envelopes to one topic keyed by relation ID, so all
// events of a relation land on one partition in order.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafkaPublisher builds a writer for the configured brokers and topic.
func NewKafkaPublisher(cfg config.EventsConfig) (*KafkaPublisher, error) {
	addrs := cfg.Brokers()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("events: no kafka brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("events: topic is required")
	}
	transport, err := Transport(cfg)
	if err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              transport,
	}
	return &KafkaPublisher{writer: w, timeout: 10 * time.Second}, nil
}

// Publish writes one envelope, bounded by the publisher timeout.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	msg, err := Message(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", env.Type, err)
	}
	slog.Debug("Published relation event", "type", env.Type, "relation", env.Payload.RelationID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message encodes env as a Kafka message.
func Message(env Envelope) (kafka.Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal: %w", err)
	}
	key := env.Payload.RelationID
	if key == "" {
		key = env.Payload.Owner
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: "type", Value: []byte(env.Type)}},
		Time:    env.Timestamp,
	}, nil
}
