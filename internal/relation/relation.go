// Package relation tracks the lifecycle of a pair of agents from first
// contact through human review to an established or rejected relation.
package relation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotParty is returned when an owner acts on a relation they are not in.
	ErrNotParty = errors.New("owner is not a party to this relation")
	// ErrAlreadyDecided is returned when a human decision is submitted twice.
	ErrAlreadyDecided = errors.New("decision already recorded")
)

// Relation is the pairing state between two agents. PartyA < PartyB.
type Relation struct {
	ID        string `json:"id"`
	PartyA    string `json:"party_a"`
	PartyB    string `json:"party_b"`
	Initiator string `json:"initiator"`
	Status    Status `json:"status"`

	AgentDecisionA Decision `json:"agent_decision_a"`
	AgentDecisionB Decision `json:"agent_decision_b"`
	HumanDecisionA Decision `json:"human_decision_a"`
	HumanDecisionB Decision `json:"human_decision_b"`

	// DisclosedToA is the sanitized public summary A's agent received.
	DisclosedToA string `json:"disclosed_to_a"`
	DisclosedToB string `json:"disclosed_to_b"`
	Strategy     string `json:"strategy"`
	Diagnostic   string `json:"diagnostic,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// Normalize orders two owner IDs.
func Normalize(a, b string) (string, string) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey identifies the unordered pair {a, b}.
func PairKey(a, b string) string {
	a, b = Normalize(a, b)
	return a + "|" + b
}

// New creates a relation in state NONE.
func New(initiator, counterpart string, now time.Time) *Relation {
	a, b := Normalize(initiator, counterpart)
	r := &Relation{
		ID:        uuid.NewString(),
		PartyA:    a,
		PartyB:    b,
		Initiator: strings.TrimSpace(initiator),
		CreatedAt: now,
	}
	r.clear(now)
	return r
}

// Key returns the pair key.
func (r *Relation) Key() string { return PairKey(r.PartyA, r.PartyB) }

// Involves reports whether owner is one of the parties.
func (r *Relation) Involves(owner string) bool {
	return owner == r.PartyA || owner == r.PartyB
}

// Counterpart returns the other party.
func (r *Relation) Counterpart(owner string) string {
	if owner == r.PartyA {
		return r.PartyB
	}
	return r.PartyA
}

// Transition moves the relation to status, or fails with *TransitionError.
func (r *Relation) Transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return &TransitionError{RelationID: r.ID, Current: r.Status, Requested: to}
	}
	r.Status = to
	r.LastTransitionAt = now
	return nil
}

// ApplyAgentDecisions records the negotiation result and moves a
// NEGOTIATING relation to AWAITING_HUMAN or REJECTED.
func (r *Relation) ApplyAgentDecisions(decA, decB Decision, now time.Time) error {
	if r.Status != StatusNegotiating {
		return &TransitionError{RelationID: r.ID, Current: r.Status, Requested: StatusAwaitingHuman}
	}
	next := Aggregate(decA, decB, Pending, Pending)
	if next == StatusNegotiating {
		// An attempt that ends without two final decisions is a rejection.
		next = StatusRejected
		if decA != Accept {
			decA = Reject
		}
		if decB != Accept {
			decB = Reject
		}
	}
	if err := r.Transition(next, now); err != nil {
		return err
	}
	r.AgentDecisionA, r.AgentDecisionB = decA, decB
	return nil
}

// SubmitFeedback records one human decision. Feedback is accepted only in
// AWAITING_HUMAN and each human decides once.
func (r *Relation) SubmitFeedback(owner string, d Decision, now time.Time) error {
	if !r.Involves(owner) {
		return ErrNotParty
	}
	if d != Accept && d != Reject {
		return fmt.Errorf("invalid decision %q", d)
	}
	if r.Status != StatusAwaitingHuman {
		return &TransitionError{RelationID: r.ID, Current: r.Status, Requested: StatusEstablished}
	}
	slot := &r.HumanDecisionA
	if owner == r.PartyB {
		slot = &r.HumanDecisionB
	}
	if *slot != Pending {
		return fmt.Errorf("%w: %s already answered %s", ErrAlreadyDecided, owner, *slot)
	}
	next := Aggregate(r.AgentDecisionA, r.AgentDecisionB, pick(owner == r.PartyA, d, r.HumanDecisionA), pick(owner == r.PartyB, d, r.HumanDecisionB))
	if next != r.Status {
		if err := r.Transition(next, now); err != nil {
			return err
		}
	} else {
		r.LastTransitionAt = now
	}
	*slot = d
	return nil
}

// Reset clears the relation through RESET back to NONE. Decisions and
// disclosures are discarded so a later attempt starts fresh.
func (r *Relation) Reset(now time.Time) error {
	if err := r.Transition(StatusReset, now); err != nil {
		return err
	}
	r.clear(now)
	return nil
}

func (r *Relation) clear(now time.Time) {
	r.Status = StatusNone
	r.AgentDecisionA, r.AgentDecisionB = Pending, Pending
	r.HumanDecisionA, r.HumanDecisionB = Pending, Pending
	r.DisclosedToA, r.DisclosedToB = "", ""
	r.Strategy, r.Diagnostic = "", ""
	r.LastTransitionAt = now
}

// HumanDecision returns owner's human decision.
func (r *Relation) HumanDecision(owner string) Decision {
	if owner == r.PartyA {
		return r.HumanDecisionA
	}
	return r.HumanDecisionB
}

// View is the bucket a relation falls into for one owner.
type View string

const (
	ViewNone        View = ""
	ViewPending     View = "pending"
	ViewSent        View = "sent"
	ViewEstablished View = "established"
	ViewRejected    View = "rejected"
)

// ViewFor classifies the relation from owner's side: pending review by the
// owner, sent (owner answered, counterpart has not), established or rejected.
func (r *Relation) ViewFor(owner string) View {
	if !r.Involves(owner) {
		return ViewNone
	}
	switch r.Status {
	case StatusAwaitingHuman:
		if r.HumanDecision(owner) == Pending {
			return ViewPending
		}
		return ViewSent
	case StatusEstablished:
		return ViewEstablished
	case StatusRejected:
		return ViewRejected
	}
	return ViewNone
}

func pick(cond bool, a, b Decision) Decision {
	if cond {
		return a
	}
	return b
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
