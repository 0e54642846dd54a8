// Package policy decides what an agent may disclose to a counterpart and
// whether a counterpart clears the owner's strictness tier.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/KafClaw/PairClaw/internal/identity"
)

// Verdict is the outcome of a disclosure evaluation.
type Verdict string

const (
	Disclose Verdict = "DISCLOSE"
	Withhold Verdict = "WITHHOLD"
)

// Disclosure is the result of evaluating one information item.
type Disclosure struct {
	Owner   string
	ItemID  string
	Verdict Verdict
	// Reason is a machine-readable code such as "private_information" or
	// "policy_violation: p2".
	Reason string
	Ts     time.Time
}

// Allowed reports whether the item may cross the negotiation boundary.
func (d Disclosure) Allowed() bool {
	return d.Verdict == Disclose
}

// Engine evaluates disclosure requests.
type Engine interface {
	EvaluateDisclosure(id *identity.Identity, itemID string) Disclosure
}

// DefaultEngine withholds private and unknown items and any public item
// matched by one of the owner's withholding policies.
type DefaultEngine struct {
	// ExtraSubjects adds terms that are always withheld, regardless of policy.
	ExtraSubjects []string
}

// NewDefaultEngine creates a disclosure engine with no extra subjects.
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{}
}

// EvaluateDisclosure checks one item of id against its tier and policies.
// Policy matches are verdicts, never errors.
func (e *DefaultEngine) EvaluateDisclosure(id *identity.Identity, itemID string) Disclosure {
	d := Disclosure{
		ItemID:  itemID,
		Verdict: Withhold,
		Ts:      time.Now(),
	}
	if id == nil {
		d.Reason = "unknown_owner"
		return d
	}
	d.Owner = id.OwnerID

	item, private, ok := id.FindItem(itemID)
	if !ok {
		d.Reason = "unknown_item"
		return d
	}
	if private {
		d.Reason = "private_information"
		return d
	}

	rules := e.rules(id)
	for _, r := range rules {
		if r.Matches(item) {
			d.Reason = fmt.Sprintf("policy_violation: %s", r.PolicyID)
			return d
		}
	}

	d.Verdict = Disclose
	d.Reason = "public_information"
	return d
}

func (e *DefaultEngine) rules(id *identity.Identity) []Rule {
	rules := ParseWithholding(id.Policies)
	for _, subject := range e.ExtraSubjects {
		if terms := normalizeTerms(wordRe.FindAllString(strings.ToLower(subject), -1)); len(terms) > 0 {
			rules = append(rules, Rule{PolicyID: "engine", Terms: terms})
		}
	}
	return rules
}

// Disclosable returns the public items of id that pass evaluation, in order.
func (e *DefaultEngine) Disclosable(id *identity.Identity) []identity.Item {
	if id == nil {
		return nil
	}
	out := make([]identity.Item, 0, len(id.Public))
	for _, it := range id.Public {
		if e.EvaluateDisclosure(id, it.ID).Allowed() {
			out = append(out, it)
		}
	}
	return out
}

// Summary renders the disclosable items as the public summary a counterpart
// receives.
func (e *DefaultEngine) Summary(id *identity.Identity) string {
	return identity.Render(e.Disclosable(id))
}

// Redactions lists verbatim contents that must never appear in an outbound
// message: every private item and every withheld public item.
func (e *DefaultEngine) Redactions(id *identity.Identity) []string {
	if id == nil {
		return nil
	}
	var out []string
	for _, it := range id.Private {
		if c := strings.TrimSpace(it.Content); c != "" {
			out = append(out, c)
		}
	}
	for _, it := range id.Public {
		if e.EvaluateDisclosure(id, it.ID).Allowed() {
			continue
		}
		if c := strings.TrimSpace(it.Content); c != "" {
			out = append(out, c)
		}
	}
	return out
}
