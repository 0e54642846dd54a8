package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KafClaw/PairClaw/internal/bus"
	"github.com/KafClaw/PairClaw/internal/events"
	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/negotiation"
	"github.com/KafClaw/PairClaw/internal/relation"
)

// Views groups an owner's relations the way owners see them.
type Views struct {
	// Pending relations wait for this owner's review.
	Pending []*relation.Relation `json:"pending"`
	// Sent relations were answered by this owner and wait for the counterpart.
	Sent        []*relation.Relation `json:"sent"`
	Established []*relation.Relation `json:"established"`
	Rejected    []*relation.Relation `json:"rejected"`
}

// ProposeRelation opens a relation between a and b, a initiating. It is
// idempotent: an existing relation that is not NONE is returned unchanged.
func (s *Service) ProposeRelation(ctx context.Context, a, b string) (*relation.Relation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("%w: two distinct owners required", ErrNotEligible)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetRelationByPair(ctx, a, b)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != relation.StatusNone {
		return existing, nil
	}
	if err := s.eligiblePair(ctx, a, b); err != nil {
		return nil, err
	}

	now := s.now()
	r := existing
	if r == nil {
		r = relation.New(a, b, now)
	}
	r.Initiator = a
	if err := r.Transition(relation.StatusProposed, now); err != nil {
		return nil, err
	}
	if existing == nil {
		err = s.store.CreateRelation(ctx, r)
	} else {
		err = s.store.UpdateRelation(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Relation proposed", "relation", r.ID, "initiator", a, "counterpart", b)
	s.emit(ctx, events.TypeProposed, r, a, "")
	return r, nil
}

// eligiblePair applies the coarse filter: both ACTIVE and each side's
// strictness satisfied by what the other would disclose.
func (s *Service) eligiblePair(ctx context.Context, a, b string) error {
	ia, err := s.liveAgent(ctx, a)
	if err != nil {
		return err
	}
	ib, err := s.liveAgent(ctx, b)
	if err != nil {
		return err
	}
	if c := s.policy.MutuallyCompatible(ia, ib); !c.Compatible {
		return fmt.Errorf("%w: %s", ErrNotEligible, c.Reason)
	}
	return nil
}

// RunNegotiation drives a PROPOSED relation through one negotiation attempt.
// The relation ends AWAITING_HUMAN or REJECTED. Failures inside the attempt
// are recovered into REJECTED with a diagnostic.
func (s *Service) RunNegotiation(ctx context.Context, relationID string) (*relation.Relation, error) {
	r, ia, ib, err := s.beginNegotiation(ctx, relationID)
	if err != nil {
		return r, err
	}

	out, runErr := s.engine.Run(ctx, negotiation.Request{A: ia, B: ib, Initiator: r.Initiator})

	s.mu.Lock()
	defer s.mu.Unlock()
	// Use a fresh context for bookkeeping so a cancelled caller still leaves
	// the relation settled.
	bg := context.WithoutCancel(ctx)
	cur, err := s.store.GetRelation(bg, relationID)
	if err != nil {
		return nil, err
	}
	if cur.Status != relation.StatusNegotiating {
		// Reset or deleted while the attempt ran; the outcome is discarded.
		slog.Info("Negotiation outcome discarded", "relation", relationID, "status", cur.Status)
		return cur, runErr
	}

	now := s.now()
	inactive := !s.partiesActive(bg, cur)
	if inactive {
		slog.Warn("Negotiation party no longer active", "relation", relationID)
	}
	if runErr != nil || inactive {
		if runErr != nil {
			slog.Warn("Negotiation could not complete", "relation", relationID, "error", runErr)
		}
		cur.Diagnostic = negotiation.DiagnosticIncomplete
		if err := cur.ApplyAgentDecisions(relation.Reject, relation.Reject, now); err != nil {
			return nil, err
		}
	} else {
		decA := toRelationDecision(out.Decisions[cur.PartyA])
		decB := toRelationDecision(out.Decisions[cur.PartyB])
		cur.DisclosedToA = out.Disclosed[cur.PartyA]
		cur.DisclosedToB = out.Disclosed[cur.PartyB]
		cur.Strategy = out.Strategy
		cur.Diagnostic = out.Diagnostic
		if err := cur.ApplyAgentDecisions(decA, decB, now); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateRelation(bg, cur); err != nil {
		return nil, err
	}

	slog.Info("Relation negotiated", "relation", cur.ID, "status", cur.Status, "strategy", cur.Strategy)
	s.emit(bg, events.TypeNegotiated, cur, "", cur.Diagnostic)
	switch cur.Status {
	case relation.StatusAwaitingHuman:
		if _, err := s.reviews.Open(bg, cur); err != nil {
			slog.Warn("Failed to open reviews", "relation", cur.ID, "error", err)
		}
		for _, owner := range []string{cur.PartyA, cur.PartyB} {
			s.notify(owner, bus.KindReviewRequested, cur, "both agents recommend connecting")
		}
	case relation.StatusRejected:
		s.emit(bg, events.TypeRejected, cur, "", cur.Diagnostic)
	}
	return cur, runErr
}

// partiesActive reloads both parties; an attempt settles only for two
// agents that are still ACTIVE.
func (s *Service) partiesActive(ctx context.Context, r *relation.Relation) bool {
	for _, owner := range []string{r.PartyA, r.PartyB} {
		id, err := s.store.GetAgent(ctx, owner)
		if err != nil || !id.IsActive() {
			return false
		}
	}
	return true
}

// beginNegotiation checks eligibility and takes the NEGOTIATING lock.
func (s *Service) beginNegotiation(ctx context.Context, relationID string) (*relation.Relation, *identity.Identity, *identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.GetRelation(ctx, relationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if r.Status == relation.StatusNegotiating {
		return r, nil, nil, fmt.Errorf("relation %s: %w", r.ID, negotiation.ErrConcurrentAttempt)
	}
	if r.Status != relation.StatusProposed {
		return r, nil, nil, &relation.TransitionError{RelationID: r.ID, Current: r.Status, Requested: relation.StatusNegotiating}
	}
	ia, err := s.liveAgent(ctx, r.PartyA)
	if err != nil {
		return r, nil, nil, err
	}
	ib, err := s.liveAgent(ctx, r.PartyB)
	if err != nil {
		return r, nil, nil, err
	}
	if !ia.IsActive() || !ib.IsActive() {
		return r, nil, nil, fmt.Errorf("%w: both agents must be active", ErrNotEligible)
	}

	ok, err := s.store.CompareAndSetStatus(ctx, r.ID, relation.StatusProposed, relation.StatusNegotiating, s.now())
	if err != nil {
		return r, nil, nil, err
	}
	if !ok {
		return r, nil, nil, fmt.Errorf("relation %s: %w", r.ID, negotiation.ErrConcurrentAttempt)
	}
	r.Status = relation.StatusNegotiating
	return r, ia, ib, nil
}

// Connect proposes a relation and, if it is freshly PROPOSED, negotiates it.
func (s *Service) Connect(ctx context.Context, a, b string) (*relation.Relation, error) {
	r, err := s.ProposeRelation(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if r.Status != relation.StatusProposed {
		return r, nil
	}
	return s.RunNegotiation(ctx, r.ID)
}

// SubmitHumanFeedback records owner's decision on a relation awaiting review.
func (s *Service) SubmitHumanFeedback(ctx context.Context, relationID, owner string, decision relation.Decision) (*relation.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.GetRelation(ctx, relationID)
	if err != nil {
		return nil, err
	}
	if err := r.SubmitFeedback(owner, decision, s.now()); err != nil {
		return r, err
	}
	if err := s.store.UpdateRelation(ctx, r); err != nil {
		return nil, err
	}
	if err := s.reviews.Respond(ctx, r.ID, owner, decision); err != nil {
		slog.Warn("Review not closed", "relation", r.ID, "owner", owner, "error", err)
	}
	slog.Info("Human feedback recorded", "relation", r.ID, "owner", owner, "decision", decision, "status", r.Status)
	s.emit(ctx, events.TypeFeedback, r, owner, string(decision))

	switch r.Status {
	case relation.StatusEstablished:
		s.emit(ctx, events.TypeEstablished, r, "", "")
		for _, o := range []string{r.PartyA, r.PartyB} {
			s.notify(o, bus.KindEstablished, r, "")
		}
	case relation.StatusRejected:
		s.reviews.Cancel(ctx, r.ID)
		s.emit(ctx, events.TypeRejected, r, owner, "")
		s.notify(r.Counterpart(owner), bus.KindRejected, r, "")
	}
	return r, nil
}

// AwaitHumanFeedback blocks until owner answers their review on relationID.
func (s *Service) AwaitHumanFeedback(ctx context.Context, relationID, owner string) (relation.Decision, error) {
	return s.reviews.Wait(ctx, relationID, owner)
}

// ResetRelation clears a relation back to NONE on behalf of one of its
// parties. Resetting a NONE relation is a no-op.
func (s *Service) ResetRelation(ctx context.Context, relationID, owner string) (*relation.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.GetRelation(ctx, relationID)
	if err != nil {
		return nil, err
	}
	if !r.Involves(owner) {
		return r, relation.ErrNotParty
	}
	if r.Status == relation.StatusNone {
		return r, nil
	}
	if err := s.resetLocked(ctx, r, owner); err != nil {
		return nil, err
	}
	return r, nil
}

// resetLocked resets r on behalf of actor and tells the counterpart.
// Callers hold s.mu.
func (s *Service) resetLocked(ctx context.Context, r *relation.Relation, actor string) error {
	prior := r.Status
	if prior == relation.StatusNegotiating {
		s.engine.CancelPair(r.PartyA, r.PartyB)
	}
	if err := r.Reset(s.now()); err != nil {
		return err
	}
	if err := s.store.UpdateRelation(ctx, r); err != nil {
		return err
	}
	s.reviews.Cancel(ctx, r.ID)
	slog.Info("Relation reset", "relation", r.ID, "by", actor, "from", prior)
	s.emit(ctx, events.TypeReset, r, actor, string(prior))
	if r.Involves(actor) {
		s.notify(r.Counterpart(actor), bus.KindReset, r, fmt.Sprintf("%s reset the relation", actor))
	}
	return nil
}

// Views buckets owner's relations into pending, sent, established and rejected.
func (s *Service) Views(ctx context.Context, owner string) (Views, error) {
	var v Views
	if _, err := s.store.GetAgent(ctx, owner); err != nil {
		return v, err
	}
	rels, err := s.store.ListRelations(ctx, owner)
	if err != nil {
		return v, err
	}
	for _, r := range rels {
		switch r.ViewFor(owner) {
		case relation.ViewPending:
			v.Pending = append(v.Pending, r)
		case relation.ViewSent:
			v.Sent = append(v.Sent, r)
		case relation.ViewEstablished:
			v.Established = append(v.Established, r)
		case relation.ViewRejected:
			v.Rejected = append(v.Rejected, r)
		}
	}
	return v, nil
}

// Recover settles relations left NEGOTIATING by a previous process: no
// attempt is running for them, so they fail closed to REJECTED.
func (s *Service) Recover(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale, err := s.store.ListRelationsByStatus(ctx, relation.StatusNegotiating)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range stale {
		if s.engine.Active(r.PartyA, r.PartyB) {
			continue
		}
		if err := s.failClosedLocked(ctx, r, "recovered"); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		slog.Warn("Recovered stale negotiations", "count", n)
	}
	return n, nil
}

// failClosedLocked ends a NEGOTIATING relation REJECTED with the incomplete
// diagnostic. Callers hold s.mu.
func (s *Service) failClosedLocked(ctx context.Context, r *relation.Relation, detail string) error {
	r.Diagnostic = negotiation.DiagnosticIncomplete
	if err := r.ApplyAgentDecisions(relation.Reject, relation.Reject, s.now()); err != nil {
		return err
	}
	if err := s.store.UpdateRelation(ctx, r); err != nil {
		return err
	}
	s.emit(ctx, events.TypeRejected, r, "", detail)
	return nil
}

func toRelationDecision(d negotiation.Decision) relation.Decision {
	switch d {
	case negotiation.Accept:
		return relation.Accept
	case negotiation.Reject:
		return relation.Reject
	}
	return relation.Pending
}
