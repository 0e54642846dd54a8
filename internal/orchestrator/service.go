// Package orchestrator is the coordinating service: it owns the relation
// records and drives proposals, negotiations, human feedback and resets.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/PairClaw/internal/approval"
	"github.com/KafClaw/PairClaw/internal/bus"
	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/events"
	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/negotiation"
	"github.com/KafClaw/PairClaw/internal/policy"
	"github.com/KafClaw/PairClaw/internal/relation"
	"github.com/KafClaw/PairClaw/internal/store"
)

var (
	// ErrNotFound is returned for unknown agents, relations and items.
	ErrNotFound = store.ErrNotFound
	// ErrNotEligible is returned when an agent's lifecycle or strictness
	// forbids the requested action.
	ErrNotEligible = errors.New("agent not eligible")
	// ErrUnknownModel is returned when a selected model is not available.
	ErrUnknownModel = errors.New("model not available")
)

// Models is the part of the reasoning backend the service exposes to owners.
type Models interface {
	AvailableModels() []string
	Allowed(model string) bool
}

// Deps wires the service's collaborators. Bus, Events and Models are optional.
type Deps struct {
	Store    *store.Store
	Engine   *negotiation.Engine
	Policy   *policy.DefaultEngine
	Reviews  *approval.Manager
	Bus      *bus.MessageBus
	Events   events.Publisher
	Models   Models
	Matching config.MatchingConfig
}

// Service implements the external operations.
type Service struct {
	store    *store.Store
	engine   *negotiation.Engine
	policy   *policy.DefaultEngine
	reviews  *approval.Manager
	bus      *bus.MessageBus
	events   events.Publisher
	models   Models
	matching config.MatchingConfig
	now      func() time.Time

	// mu serializes read-modify-write cycles on relation and agent rows.
	mu      sync.Mutex
	running bool
}

// New creates the service.
func New(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		engine:   d.Engine,
		policy:   d.Policy,
		reviews:  d.Reviews,
		bus:      d.Bus,
		events:   d.Events,
		models:   d.Models,
		matching: d.Matching,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.policy == nil {
		s.policy = policy.NewDefaultEngine()
	}
	if s.reviews == nil {
		s.reviews = approval.NewManager(d.Store)
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.matching.MaxConcurrent <= 0 {
		s.matching.MaxConcurrent = 4
	}
	if s.matching.Interval <= 0 {
		s.matching.Interval = 10 * time.Minute
	}
	return s
}

// GetAgent loads an identity.
func (s *Service) GetAgent(ctx context.Context, owner string) (*identity.Identity, error) {
	return s.store.GetAgent(ctx, owner)
}

// GetRelation loads a relation.
func (s *Service) GetRelation(ctx context.Context, id string) (*relation.Relation, error) {
	return s.store.GetRelation(ctx, id)
}

// Events returns the audit log of one relation.
func (s *Service) Events(ctx context.Context, relationID string) ([]store.EventRecord, error) {
	return s.store.ListEvents(ctx, relationID)
}

// emit records an event in the audit log and publishes it. Failures are
// logged and never fail the operation.
func (s *Service) emit(ctx context.Context, typ string, r *relation.Relation, owner, detail string) {
	p := events.Payload{Owner: owner, Detail: detail}
	if r != nil {
		p.RelationID = r.ID
		p.PartyA = r.PartyA
		p.PartyB = r.PartyB
		p.Status = string(r.Status)
		p.Strategy = r.Strategy
	}
	env := events.NewEnvelope(typ, p)
	if err := s.store.LogEvent(ctx, &store.EventRecord{
		EventID:    env.CorrelationID,
		RelationID: p.RelationID,
		Type:       typ,
		OwnerID:    owner,
		Status:     p.Status,
		Detail:     detail,
	}); err != nil {
		slog.Warn("Failed to log relation event", "type", typ, "error", err)
	}
	if err := s.events.Publish(ctx, env); err != nil {
		slog.Warn("Failed to publish relation event", "type", typ, "error", err)
	}
}

func (s *Service) notify(owner, kind string, r *relation.Relation, text string) {
	if s.bus == nil {
		return
	}
	n := &bus.Notification{Owner: owner, Kind: kind, Text: text}
	if r != nil {
		n.RelationID = r.ID
		n.Counterpart = r.Counterpart(owner)
	}
	s.bus.Publish(n)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
