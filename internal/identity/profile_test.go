package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const aliceProfile = `owner: alice
strictness: industry
public:
  - id: industry
    content: software
  - id: hobbies
    content: climbing and chess
private:
  - id: salary
    content: 120k EUR
policies:
  - id: p1
    content: Never share my salary
defense:
  variant: Spotlight
  models: [openai/gpt-4o-mini, " openai/gpt-4o-mini ", ollama/llama3]
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadProfileToIdentity(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "alice.yaml", aliceProfile)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	id := p.Identity()
	if id.OwnerID != "alice" {
		t.Fatalf("expected owner alice, got %q", id.OwnerID)
	}
	if id.Strictness != StrictnessIndustry {
		t.Fatalf("expected industry strictness, got %s", id.Strictness)
	}
	if id.Lifecycle != LifecycleActive {
		t.Fatalf("expected active lifecycle, got %s", id.Lifecycle)
	}
	if id.Defense.Variant != "spotlight" {
		t.Fatalf("expected lowercased variant, got %q", id.Defense.Variant)
	}
	if len(id.Defense.Models) != 2 || id.Defense.PrimaryModel() != "openai/gpt-4o-mini" || id.Defense.QuarantinedModel() != "ollama/llama3" {
		t.Fatalf("unexpected models: %v", id.Defense.Models)
	}
	if got := id.Attribute(AttrIndustry); got != "software" {
		t.Fatalf("expected industry attribute, got %q", got)
	}
	item, private, ok := id.FindItem("salary")
	if !ok || !private || item.Content != "120k EUR" {
		t.Fatalf("expected private salary item, got %+v private=%v ok=%v", item, private, ok)
	}
}

func TestLoadProfileRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "owner: bob\npublic:\n  - id: a\n    content: x\n  - id: a\n    content: y\n")
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestLoadProfileRequiresOwner(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "anon.yaml", "public: []\n")
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("expected missing owner error")
	}
}

func TestEmptyProfileIsUnset(t *testing.T) {
	p := &Profile{Owner: "carol"}
	if got := p.Identity().Lifecycle; got != LifecycleUnset {
		t.Fatalf("expected unset lifecycle, got %s", got)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src, err := LoadProfile(writeFile(t, dir, "alice.yaml", aliceProfile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out := filepath.Join(dir, "out", "alice.yaml")
	if err := SaveProfile(out, ProfileFrom(src.Identity())); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := LoadProfile(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Strictness != "industry" || len(again.Private) != 1 || len(again.Policies) != 1 {
		t.Fatalf("unexpected reloaded profile: %+v", again)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alice.yaml", aliceProfile)
	writeFile(t, dir, "broken.yml", "owner: [")
	writeFile(t, dir, "notes.txt", "ignore me")

	res, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(res.Loaded) != 1 || res.Loaded[0].Owner != "alice" {
		t.Fatalf("expected alice loaded, got %+v", res.Loaded)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one error, got %v", res.Errors)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "notes.txt" {
		t.Fatalf("expected notes.txt skipped, got %v", res.Skipped)
	}
}

func TestParseStrictness(t *testing.T) {
	cases := map[string]Strictness{
		"":                      StrictnessOpen,
		"OPEN":                  StrictnessOpen,
		"industry":              StrictnessIndustry,
		"organization":          StrictnessOrganization,
		"organization-and-role": StrictnessOrganizationAndRole,
	}
	for in, want := range cases {
		got, err := ParseStrictness(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", in, want, got)
		}
	}
	if _, err := ParseStrictness("galaxy"); err == nil {
		t.Fatal("expected error for unknown strictness")
	}
}

func TestWatcherReloadsEditedProfile(t *testing.T) {
	dir := t.TempDir()
	got := make(chan *Profile, 4)
	w, err := NewWatcher(dir, func(p *Profile) { got <- p })
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.Start()
	defer w.Stop()

	writeFile(t, dir, "alice.yaml", aliceProfile)

	select {
	case p := <-got:
		if p.Owner != "alice" {
			t.Fatalf("expected alice, got %q", p.Owner)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
