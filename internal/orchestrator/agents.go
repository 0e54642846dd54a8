package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/KafClaw/PairClaw/internal/bus"
	"github.com/KafClaw/PairClaw/internal/events"
	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/negotiation"
	"github.com/KafClaw/PairClaw/internal/policy"
	"github.com/KafClaw/PairClaw/internal/relation"
)

// InformationUpdate edits an identity. Nil slices and a nil Strictness are
// left unchanged; pass an empty slice to clear a group.
type InformationUpdate struct {
	Public     []identity.Item
	Private    []identity.Item
	Policies   []identity.Item
	Strictness *identity.Strictness
	// Questions replaces the dual LLM screening questions. When nil, a
	// policy change drops the stored ones.
	Questions []string
	// Reset clears every relation of the identity that is not terminal.
	Reset bool
}

// EvaluateInformationDisclosure reports whether owner's agent may disclose itemID.
func (s *Service) EvaluateInformationDisclosure(ctx context.Context, owner, itemID string) (policy.Disclosure, error) {
	id, err := s.store.GetAgent(ctx, owner)
	if err != nil {
		return policy.Disclosure{}, err
	}
	if id.Lifecycle == identity.LifecycleDeleted {
		return policy.Disclosure{}, notFound("agent", owner)
	}
	return s.policy.EvaluateDisclosure(id, itemID), nil
}

// RegisterAgent creates or replaces an identity. An identity with information
// becomes ACTIVE, one without stays UNSET; a paused agent stays paused.
func (s *Service) RegisterAgent(ctx context.Context, in *identity.Identity) (*identity.Identity, error) {
	id := in.Clone()
	id.OwnerID = strings.TrimSpace(id.OwnerID)
	if id.OwnerID == "" {
		return nil, fmt.Errorf("register agent: owner is required")
	}
	if err := identity.ValidateItems(id.Public, id.Private, id.Policies); err != nil {
		return nil, fmt.Errorf("register agent %s: %w", id.OwnerID, err)
	}
	variant, models, err := s.checkDefense(id.Defense.Variant, id.Defense.Models)
	if err != nil {
		return nil, fmt.Errorf("register agent %s: %w", id.OwnerID, err)
	}
	id.Defense = identity.DefenseConfig{Variant: variant, Models: models}
	id.ActiveModels = models

	s.mu.Lock()
	defer s.mu.Unlock()

	paused := false
	if prev, err := s.store.GetAgent(ctx, id.OwnerID); err == nil {
		paused = prev.Lifecycle == identity.LifecyclePaused
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	switch {
	case paused:
		id.Lifecycle = identity.LifecyclePaused
	case id.HasInformation():
		id.Lifecycle = identity.LifecycleActive
	default:
		id.Lifecycle = identity.LifecycleUnset
	}
	if err := s.store.SaveAgent(ctx, id); err != nil {
		return nil, err
	}
	slog.Info("Agent registered", "owner", id.OwnerID, "lifecycle", id.Lifecycle, "strategy", id.Defense.Variant)
	s.emit(ctx, events.TypeAgent, nil, id.OwnerID, "registered:"+string(id.Lifecycle))
	return id, nil
}

// ApplyProfile registers the owner of p or, when the owner already has a
// live agent, applies p as an information edit followed by a defense change
// if the profile selects a different one.
func (s *Service) ApplyProfile(ctx context.Context, p *identity.Profile) (*identity.Identity, error) {
	in := p.Identity()
	prev, err := s.liveAgent(ctx, in.OwnerID)
	if errors.Is(err, ErrNotFound) {
		return s.RegisterAgent(ctx, in)
	}
	if err != nil {
		return nil, err
	}
	strictness := in.Strictness
	id, err := s.UpdateInformation(ctx, in.OwnerID, InformationUpdate{
		Public:     orEmpty(in.Public),
		Private:    orEmpty(in.Private),
		Policies:   orEmpty(in.Policies),
		Strictness: &strictness,
		Reset:      p.Reset,
	})
	if err != nil {
		return nil, err
	}
	if in.Defense.Variant != prev.Defense.Variant || !slices.Equal(in.Defense.Models, prev.Defense.Models) {
		return s.SelectDefenseStrategy(ctx, in.OwnerID, in.Defense.Variant, in.Defense.Models)
	}
	return id, nil
}

// SetupFromText onboards owner from a free-text message. The owner's model
// sorts it into public information, private information and policies, which
// register the agent or replace the information of a live one. Agents on the
// dual LLM strategy also get their screening questions here.
func (s *Service) SetupFromText(ctx context.Context, owner, text string) (*identity.Identity, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("setup: owner is required")
	}
	prev, err := s.liveAgent(ctx, owner)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	var model, variant string
	if prev != nil {
		model, variant = prev.Defense.PrimaryModel(), prev.Defense.Variant
	}
	if variant == "" {
		variant = s.engine.DefaultStrategy()
	}

	setup, err := s.engine.ExtractSetup(ctx, owner, model, text, variant == negotiation.VariantDualLLM)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return s.RegisterAgent(ctx, &identity.Identity{
			OwnerID:   owner,
			Public:    setup.Public,
			Private:   setup.Private,
			Policies:  setup.Policies,
			Questions: setup.Questions,
		})
	}
	return s.UpdateInformation(ctx, owner, InformationUpdate{
		Public:    orEmpty(setup.Public),
		Private:   orEmpty(setup.Private),
		Policies:  orEmpty(setup.Policies),
		Questions: setup.Questions,
	})
}

func orEmpty(items []identity.Item) []identity.Item {
	if items == nil {
		return []identity.Item{}
	}
	return items
}

// UpdateInformation edits an identity. Attempts already running keep their
// snapshot; the edit applies from the next attempt. With Reset, relations
// that are neither NONE nor terminal go back to NONE.
func (s *Service) UpdateInformation(ctx context.Context, owner string, upd InformationUpdate) (*identity.Identity, error) {
	if err := identity.ValidateItems(upd.Public, upd.Private, upd.Policies); err != nil {
		return nil, fmt.Errorf("update %s: %w", owner, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.liveAgent(ctx, owner)
	if err != nil {
		return nil, err
	}
	if upd.Public != nil {
		id.Public = append([]identity.Item(nil), upd.Public...)
	}
	if upd.Private != nil {
		id.Private = append([]identity.Item(nil), upd.Private...)
	}
	if upd.Policies != nil {
		if !slices.Equal(id.Policies, upd.Policies) {
			id.Questions = nil
		}
		id.Policies = append([]identity.Item(nil), upd.Policies...)
	}
	if upd.Questions != nil {
		id.Questions = append([]string(nil), upd.Questions...)
	}
	if upd.Strictness != nil {
		id.Strictness = *upd.Strictness
	}
	if id.Lifecycle == identity.LifecycleUnset && id.HasInformation() {
		id.Lifecycle = identity.LifecycleActive
	}
	if err := s.store.SaveAgent(ctx, id); err != nil {
		return nil, err
	}
	s.emit(ctx, events.TypeAgent, nil, owner, "information_updated")

	if upd.Reset {
		rels, err := s.store.ListRelations(ctx, owner)
		if err != nil {
			return id, err
		}
		for _, r := range rels {
			if r.Status == relation.StatusNone || r.Status.Terminal() {
				continue
			}
			if err := s.resetLocked(ctx, r, owner); err != nil {
				return id, err
			}
		}
	}
	return id, nil
}

// PauseAgent stops owner's agent from entering new negotiations and aborts
// any attempt in flight; aborted attempts end REJECTED. Attempts run by
// another process are failed closed through the store and their outcome is
// discarded when they settle.
func (s *Service) PauseAgent(ctx context.Context, owner string) error {
	s.mu.Lock()
	id, err := s.liveAgent(ctx, owner)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	id.Lifecycle = identity.LifecyclePaused
	if err := s.store.SaveAgent(ctx, id); err != nil {
		s.mu.Unlock()
		return err
	}
	stopped, err := s.failClosedOwnerLocked(ctx, owner, "paused")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	n := s.engine.Cancel(owner)
	slog.Info("Agent paused", "owner", owner, "cancelled", n, "stopped", stopped)
	s.emit(ctx, events.TypeAgent, nil, owner, "paused")
	if stopped > 0 {
		s.notify(owner, bus.KindPaused, nil, fmt.Sprintf("%d negotiation(s) stopped", stopped))
	}
	return nil
}

// failClosedOwnerLocked rejects every NEGOTIATING relation of owner.
func (s *Service) failClosedOwnerLocked(ctx context.Context, owner, detail string) (int, error) {
	rels, err := s.store.ListRelations(ctx, owner)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rels {
		if r.Status != relation.StatusNegotiating {
			continue
		}
		if err := s.failClosedLocked(ctx, r, detail); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ResumeAgent reactivates a paused agent.
func (s *Service) ResumeAgent(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.liveAgent(ctx, owner)
	if err != nil {
		return err
	}
	if id.Lifecycle != identity.LifecyclePaused {
		return nil
	}
	id.Lifecycle = identity.LifecycleActive
	if !id.HasInformation() {
		id.Lifecycle = identity.LifecycleUnset
	}
	if err := s.store.SaveAgent(ctx, id); err != nil {
		return err
	}
	slog.Info("Agent resumed", "owner", owner, "lifecycle", id.Lifecycle)
	s.emit(ctx, events.TypeAgent, nil, owner, "resumed")
	return nil
}

// DeleteAgent removes owner's agent: in-flight attempts are aborted, every
// relation is reset (counterparts are notified) and the information is wiped.
func (s *Service) DeleteAgent(ctx context.Context, owner string) error {
	s.engine.Cancel(owner)

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.liveAgent(ctx, owner)
	if err != nil {
		return err
	}
	rels, err := s.store.ListRelations(ctx, owner)
	if err != nil {
		return err
	}
	for _, r := range rels {
		if r.Status == relation.StatusNone {
			continue
		}
		if err := s.resetLocked(ctx, r, owner); err != nil {
			return err
		}
	}
	id.Lifecycle = identity.LifecycleDeleted
	id.Public, id.Private, id.Policies = nil, nil, nil
	if err := s.store.SaveAgent(ctx, id); err != nil {
		return err
	}
	slog.Info("Agent deleted", "owner", owner, "relations_reset", len(rels))
	s.emit(ctx, events.TypeAgent, nil, owner, "deleted")
	return nil
}

// SelectDefenseStrategy sets the variant and models used from owner's next
// attempt on.
func (s *Service) SelectDefenseStrategy(ctx context.Context, owner, variant string, models []string) (*identity.Identity, error) {
	v, ms, err := s.checkDefense(variant, models)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.liveAgent(ctx, owner)
	if err != nil {
		return nil, err
	}
	id.Defense = identity.DefenseConfig{Variant: v, Models: ms}
	id.ActiveModels = ms
	if err := s.store.SaveAgent(ctx, id); err != nil {
		return nil, err
	}
	slog.Info("Defense strategy selected", "owner", owner, "strategy", v, "models", ms)
	s.emit(ctx, events.TypeAgent, nil, owner, "strategy:"+v)
	return id, nil
}

// AvailableModels lists the models owners may select.
func (s *Service) AvailableModels() []string {
	if s.models == nil {
		return nil
	}
	return s.models.AvailableModels()
}

func (s *Service) checkDefense(variant string, models []string) (string, []string, error) {
	v, err := negotiation.NormalizeVariant(variant)
	if err != nil {
		return "", nil, err
	}
	ms := identity.NormalizeModels(models)
	if s.models != nil {
		for _, m := range ms {
			if !s.models.Allowed(m) {
				return "", nil, fmt.Errorf("%w: %s", ErrUnknownModel, m)
			}
		}
	}
	return v, ms, nil
}

// liveAgent loads a non-deleted identity.
func (s *Service) liveAgent(ctx context.Context, owner string) (*identity.Identity, error) {
	id, err := s.store.GetAgent(ctx, owner)
	if err != nil {
		return nil, err
	}
	if id.Lifecycle == identity.LifecycleDeleted {
		return nil, notFound("agent", owner)
	}
	return id, nil
}
