// Package identity describes the agent each owner delegates: its information
// tiers, pairing policies, lifecycle, and defense configuration.
package identity

import (
	"fmt"
	"strings"
)

// Strictness is the owner-chosen threshold a counterpart must meet before it
// is considered. Tiers are strictly ordered from Open to OrganizationAndRole.
type Strictness int

const (
	StrictnessOpen Strictness = iota
	StrictnessIndustry
	StrictnessOrganization
	StrictnessOrganizationAndRole
)

var strictnessNames = map[Strictness]string{
	StrictnessOpen:                "open",
	StrictnessIndustry:            "industry",
	StrictnessOrganization:        "organization",
	StrictnessOrganizationAndRole: "organization_and_role",
}

func (s Strictness) String() string {
	if n, ok := strictnessNames[s]; ok {
		return n
	}
	return fmt.Sprintf("strictness(%d)", int(s))
}

// ParseStrictness accepts the lowercase names used in profiles and config.
func ParseStrictness(s string) (Strictness, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if key == "" {
		return StrictnessOpen, nil
	}
	for k, v := range strictnessNames {
		if v == key {
			return k, nil
		}
	}
	return StrictnessOpen, fmt.Errorf("unknown strictness %q", s)
}

// Lifecycle replaces the "all info fields empty means setup in progress"
// convention with an explicit state.
type Lifecycle string

const (
	LifecycleUnset   Lifecycle = "unset"
	LifecycleActive  Lifecycle = "active"
	LifecyclePaused  Lifecycle = "paused"
	LifecycleDeleted Lifecycle = "deleted"
)

// Well-known public information IDs read by the strictness filter.
const (
	AttrIndustry     = "industry"
	AttrOrganization = "organization"
	AttrRole         = "role"
)

// Item is one piece of owner-authored information or one policy rule.
type Item struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
}

// DefenseConfig selects the defense variant and the models an agent reasons with.
// Models[0] is the primary model; the dual LLM variant quarantines Models[1].
type DefenseConfig struct {
	Variant string   `json:"variant" yaml:"variant"`
	Models  []string `json:"models" yaml:"models"`
}

// PrimaryModel returns the model used for the agent's own reasoning.
func (d DefenseConfig) PrimaryModel() string {
	if len(d.Models) == 0 {
		return ""
	}
	return d.Models[0]
}

// QuarantinedModel returns the model that may read raw counterpart text.
func (d DefenseConfig) QuarantinedModel() string {
	if len(d.Models) > 1 {
		return d.Models[1]
	}
	return d.PrimaryModel()
}

// Identity is one owner's agent.
type Identity struct {
	OwnerID      string        `json:"owner_id"`
	Public       []Item        `json:"public"`
	Private      []Item        `json:"private"`
	Policies     []Item        `json:"policies"`
	Strictness   Strictness    `json:"strictness"`
	Lifecycle    Lifecycle     `json:"lifecycle"`
	ActiveModels []string      `json:"active_models"`
	Defense      DefenseConfig `json:"defense"`
	// Questions are the dual LLM screening questions derived from the
	// policies at setup. Empty means they are generated per attempt.
	Questions []string `json:"questions,omitempty"`
}

// Clone returns a deep copy, used to snapshot an identity for one attempt.
func (id *Identity) Clone() *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	cp.Public = append([]Item(nil), id.Public...)
	cp.Private = append([]Item(nil), id.Private...)
	cp.Policies = append([]Item(nil), id.Policies...)
	cp.ActiveModels = append([]string(nil), id.ActiveModels...)
	cp.Defense.Models = append([]string(nil), id.Defense.Models...)
	cp.Questions = append([]string(nil), id.Questions...)
	return &cp
}

// IsActive reports whether the agent may take part in matching.
func (id *Identity) IsActive() bool {
	return id != nil && id.Lifecycle == LifecycleActive
}

// Attribute returns the content of the public item with the given well-known ID.
func (id *Identity) Attribute(name string) string {
	return Lookup(id.Public, name)
}

// FindItem locates an item by ID across public and private information.
// The second return value reports whether the item is private.
func (id *Identity) FindItem(itemID string) (Item, bool, bool) {
	for _, it := range id.Public {
		if it.ID == itemID {
			return it, false, true
		}
	}
	for _, it := range id.Private {
		if it.ID == itemID {
			return it, true, true
		}
	}
	return Item{}, false, false
}

// HasModel reports whether model is part of the agent's active model set.
// An empty set accepts any model.
func (id *Identity) HasModel(model string) bool {
	if len(id.ActiveModels) == 0 {
		return true
	}
	for _, m := range id.ActiveModels {
		if m == model {
			return true
		}
	}
	return false
}

// Lookup finds the content of the item whose ID matches name (case-insensitive).
func Lookup(items []Item, name string) string {
	for _, it := range items {
		if strings.EqualFold(strings.TrimSpace(it.ID), name) {
			return strings.TrimSpace(it.Content)
		}
	}
	return ""
}

// Render joins items into the "- id: content" block used in prompts and summaries.
func Render(items []Item) string {
	if len(items) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s: %s", it.ID, it.Content)
	}
	return sb.String()
}

// NormalizeModels trims, dedupes, and drops empty model identifiers while
// keeping the caller's order.
func NormalizeModels(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// ValidateItems rejects items without an ID and duplicate IDs within a group.
func ValidateItems(groups ...[]Item) error {
	for _, group := range groups {
		seen := make(map[string]bool, len(group))
		for _, it := range group {
			if strings.TrimSpace(it.ID) == "" {
				return fmt.Errorf("item without id")
			}
			if seen[it.ID] {
				return fmt.Errorf("duplicate item id %q", it.ID)
			}
			seen[it.ID] = true
		}
	}
	return nil
}

// HasInformation reports whether the owner has authored anything yet.
func (id *Identity) HasInformation() bool {
	return len(id.Public) > 0 || len(id.Private) > 0 || len(id.Policies) > 0
}
