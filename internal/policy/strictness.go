package policy

import (
	"fmt"
	"strings"

	"github.com/KafClaw/PairClaw/internal/identity"
)

// Compatibility is the trust verdict for one owner looking at a counterpart's
// disclosed profile. It is a signal next to the negotiated decision, not a
// replacement for it.
type Compatibility struct {
	Compatible bool
	Tier       identity.Strictness
	Reason     string
}

// tierChecks lists, per tier, the attributes that must be equal. Each tier
// extends the previous one, which keeps evaluation monotonic.
var tierChecks = map[identity.Strictness][]string{
	identity.StrictnessOpen:                nil,
	identity.StrictnessIndustry:            {identity.AttrIndustry},
	identity.StrictnessOrganization:        {identity.AttrIndustry, identity.AttrOrganization},
	identity.StrictnessOrganizationAndRole: {identity.AttrIndustry, identity.AttrOrganization, identity.AttrRole},
}

// Compatible evaluates counterpartDisclosed against owner at tier. A missing
// attribute on either side is incompatible.
func Compatible(owner *identity.Identity, counterpartDisclosed []identity.Item, tier identity.Strictness) Compatibility {
	c := Compatibility{Tier: tier}
	checks, ok := tierChecks[tier]
	if !ok {
		c.Reason = fmt.Sprintf("unknown_tier: %d", int(tier))
		return c
	}
	for _, attr := range checks {
		mine := normalizeAttr(owner.Attribute(attr))
		theirs := normalizeAttr(identity.Lookup(counterpartDisclosed, attr))
		if mine == "" || theirs == "" {
			c.Reason = fmt.Sprintf("missing_%s", attr)
			return c
		}
		if mine != theirs {
			c.Reason = fmt.Sprintf("%s_mismatch", attr)
			return c
		}
	}
	c.Compatible = true
	c.Reason = fmt.Sprintf("tier_%s_satisfied", tier)
	return c
}

// MutuallyCompatible is the coarse matching filter: both agents ACTIVE and each
// side's strictness satisfied by what the other would disclose.
func (e *DefaultEngine) MutuallyCompatible(a, b *identity.Identity) Compatibility {
	if !a.IsActive() || !b.IsActive() {
		return Compatibility{Reason: "not_active"}
	}
	ab := Compatible(a, e.Disclosable(b), a.Strictness)
	if !ab.Compatible {
		return ab
	}
	return Compatible(b, e.Disclosable(a), b.Strictness)
}

func normalizeAttr(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
