package identity

import (
	"os"
	"testing"
)

func TestScaffoldProfileLoads(t *testing.T) {
	dir := t.TempDir()

	res, err := ScaffoldProfile(dir, "alice", false)
	if err != nil {
		t.Fatalf("ScaffoldProfile failed: %v", err)
	}
	if !res.Created {
		t.Fatal("expected profile to be created")
	}
	p, err := LoadProfile(res.Path)
	if err != nil {
		t.Fatalf("scaffolded profile does not load: %v", err)
	}
	if p.Owner != "alice" || p.Defense.Variant != "spotlight" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if id := p.Identity(); id.Lifecycle != LifecycleActive {
		t.Errorf("expected active identity, got %s", id.Lifecycle)
	}
}

func TestScaffoldProfileKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	res, err := ScaffoldProfile(dir, "alice", false)
	if err != nil {
		t.Fatal(err)
	}
	custom := []byte("owner: alice\n")
	os.WriteFile(res.Path, custom, 0o600)

	again, err := ScaffoldProfile(dir, "alice", false)
	if err != nil {
		t.Fatal(err)
	}
	if again.Created {
		t.Error("existing profile should be kept")
	}
	got, _ := os.ReadFile(res.Path)
	if string(got) != string(custom) {
		t.Error("existing profile was overwritten")
	}

	if forced, _ := ScaffoldProfile(dir, "alice", true); !forced.Created {
		t.Error("force should overwrite")
	}
}

func TestScaffoldProfileRejectsPaths(t *testing.T) {
	if _, err := ScaffoldProfile(t.TempDir(), "../bob", false); err == nil {
		t.Fatal("expected error for path-like owner")
	}
}
