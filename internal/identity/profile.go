package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is the on-disk YAML form an owner authors for their agent.
type Profile struct {
	Owner      string        `yaml:"owner"`
	Strictness string        `yaml:"strictness,omitempty"`
	Public     []Item        `yaml:"public"`
	Private    []Item        `yaml:"private,omitempty"`
	Policies   []Item        `yaml:"policies,omitempty"`
	Defense    DefenseConfig `yaml:"defense,omitempty"`
	// Reset asks that existing relations be cleared when the edit is applied.
	Reset bool `yaml:"reset,omitempty"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: parse %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile writes p as YAML, creating parent directories.
func SaveProfile(path string, p *Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("profile: create dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (p *Profile) validate() error {
	if strings.TrimSpace(p.Owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if _, err := ParseStrictness(p.Strictness); err != nil {
		return err
	}
	return ValidateItems(p.Public, p.Private, p.Policies)
}

// Identity converts the profile into an ACTIVE identity. A profile with no
// information at all yields an UNSET identity.
func (p *Profile) Identity() *Identity {
	strictness, _ := ParseStrictness(p.Strictness)
	models := NormalizeModels(p.Defense.Models)
	id := &Identity{
		OwnerID:      strings.TrimSpace(p.Owner),
		Public:       append([]Item(nil), p.Public...),
		Private:      append([]Item(nil), p.Private...),
		Policies:     append([]Item(nil), p.Policies...),
		Strictness:   strictness,
		Lifecycle:    LifecycleActive,
		ActiveModels: models,
		Defense: DefenseConfig{
			Variant: strings.ToLower(strings.TrimSpace(p.Defense.Variant)),
			Models:  models,
		},
	}
	if len(id.Public) == 0 && len(id.Private) == 0 && len(id.Policies) == 0 {
		id.Lifecycle = LifecycleUnset
	}
	return id
}

// ProfileFrom renders an identity back into its YAML form.
func ProfileFrom(id *Identity) *Profile {
	return &Profile{
		Owner:      id.OwnerID,
		Strictness: id.Strictness.String(),
		Public:     append([]Item(nil), id.Public...),
		Private:    append([]Item(nil), id.Private...),
		Policies:   append([]Item(nil), id.Policies...),
		Defense: DefenseConfig{
			Variant: id.Defense.Variant,
			Models:  append([]string(nil), id.Defense.Models...),
		},
	}
}

// ImportResult reports which profile files were loaded, skipped, or errored.
type ImportResult struct {
	Loaded  []*Profile
	Skipped []string
	Errors  []string
}

// LoadDir reads every *.yaml / *.yml profile in dir, in name order.
func LoadDir(dir string) (*ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("profile: read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := &ImportResult{}
	for _, name := range names {
		if !IsProfileFile(name) {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		p, err := LoadProfile(filepath.Join(dir, name))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		result.Loaded = append(result.Loaded, p)
	}
	return result, nil
}

// IsProfileFile reports whether name looks like a profile document.
func IsProfileFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
