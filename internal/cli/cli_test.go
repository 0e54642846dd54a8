package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	rootCmd.SetArgs(nil)
	return strings.TrimSpace(buf.String()), err
}

// isolate points the config and database at a temporary home.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("PAIRCLAW_HOME", dir)
	t.Setenv("PAIRCLAW_PATHS_DATABASE", filepath.Join(dir, "pairclaw.db"))
	t.Setenv("PAIRCLAW_EVENTS_ENABLED", "false")
	t.Setenv("PAIRCLAW_NOTIFY_ENABLED", "false")
	return dir
}

func writeProfile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

const xavierProfile = `owner: xavier
strictness: open
public:
  - id: hobbies
    content: sailing
  - id: salary_band
    content: senior salary band
private:
  - id: salary
    content: 150k
policies:
  - id: p1
    content: Never share salary information.
`

const yaraProfile = `owner: yara
public:
  - id: hobbies
    content: chess
`

func TestVersionCommand(t *testing.T) {
	out, err := runRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Fatalf("expected version in output, got %q", out)
	}
}

func TestAgentImportShowDisclose(t *testing.T) {
	dir := isolate(t)
	profiles := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profiles, 0o755); err != nil {
		t.Fatal(err)
	}
	writeProfile(t, profiles, "xavier.yaml", xavierProfile)
	writeProfile(t, profiles, "yara.yml", yaraProfile)
	writeProfile(t, profiles, "README.md", "not a profile")

	out, err := runRootCommand(t, "agent", "import", profiles)
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "xavier imported (active)") || !strings.Contains(out, "yara imported") {
		t.Fatalf("unexpected import output: %s", out)
	}

	out, err = runRootCommand(t, "agent", "show", "xavier")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "lifecycle: active") || !strings.Contains(out, "owner: xavier") {
		t.Fatalf("unexpected show output: %s", out)
	}

	out, err = runRootCommand(t, "agent", "disclose", "xavier", "salary_band")
	if err != nil {
		t.Fatalf("disclose: %v", err)
	}
	if !strings.Contains(out, "WITHHOLD") || !strings.Contains(out, "policy_violation: p1") {
		t.Fatalf("salary band must be withheld: %s", out)
	}
	out, _ = runRootCommand(t, "agent", "disclose", "xavier", "hobbies")
	if !strings.Contains(out, "DISCLOSE") {
		t.Fatalf("hobbies should be disclosed: %s", out)
	}
}

func TestRelationProposeResetViews(t *testing.T) {
	dir := isolate(t)
	if _, err := runRootCommand(t, "agent", "import", writeProfile(t, dir, "xavier.yaml", xavierProfile)); err != nil {
		t.Fatalf("import xavier: %v", err)
	}
	if _, err := runRootCommand(t, "agent", "import", writeProfile(t, dir, "yara.yaml", yaraProfile)); err != nil {
		t.Fatalf("import yara: %v", err)
	}

	out, err := runRootCommand(t, "relation", "propose", "yara", "xavier")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !strings.Contains(out, "PROPOSED") || !strings.Contains(out, "initiator yara") {
		t.Fatalf("unexpected propose output: %s", out)
	}
	var id string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Relation:") {
			id = strings.TrimSpace(strings.TrimPrefix(line, "Relation:"))
		}
	}
	if id == "" {
		t.Fatalf("no relation id in %s", out)
	}

	if _, err := runRootCommand(t, "relation", "feedback", id, "xavier", "accept"); err == nil {
		t.Fatal("feedback before review must fail")
	}
	if _, err := runRootCommand(t, "relation", "feedback", id, "xavier", "maybe"); err == nil {
		t.Fatal("unknown decision must fail")
	}

	out, err = runRootCommand(t, "relation", "reset", id, "xavier")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "NONE") {
		t.Fatalf("expected NONE after reset: %s", out)
	}

	out, err = runRootCommand(t, "relation", "show", id)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "relation.proposed") || !strings.Contains(out, "relation.reset") {
		t.Fatalf("event log missing entries: %s", out)
	}

	out, err = runRootCommand(t, "relation", "views", "xavier")
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if !strings.Contains(out, "Pending (0)") || !strings.Contains(out, "Established (0)") {
		t.Fatalf("unexpected views: %s", out)
	}
}

func TestAgentPauseResumeDelete(t *testing.T) {
	dir := isolate(t)
	if _, err := runRootCommand(t, "agent", "import", writeProfile(t, dir, "xavier.yaml", xavierProfile)); err != nil {
		t.Fatalf("import: %v", err)
	}
	for _, step := range []string{"pause", "resume", "delete"} {
		out, err := runRootCommand(t, "agent", step, "xavier")
		if err != nil {
			t.Fatalf("%s: %v", step, err)
		}
		if !strings.Contains(out, "xavier") {
			t.Fatalf("%s output: %s", step, out)
		}
	}
	if _, err := runRootCommand(t, "agent", "pause", "xavier"); err == nil {
		t.Fatal("deleted agent cannot be paused")
	}
	if _, err := runRootCommand(t, "agent", "defense", "xavier", "--variant", "telepathy"); err == nil {
		t.Fatal("unknown variant must fail")
	}
}

func TestAgentModelsListsStrategies(t *testing.T) {
	isolate(t)
	out, err := runRootCommand(t, "agent", "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	for _, v := range []string{"vanilla", "spotlight", "dual_llm", "judge"} {
		if !strings.Contains(out, v) {
			t.Fatalf("missing %s in %s", v, out)
		}
	}
}

func TestAgentInitThenImport(t *testing.T) {
	dir := isolate(t)
	profiles := filepath.Join(dir, "profiles")
	out, err := runRootCommand(t, "agent", "init", "zoe", "--dir", profiles)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "zoe.yaml") {
		t.Fatalf("unexpected init output: %s", out)
	}
	out, _ = runRootCommand(t, "agent", "init", "zoe", "--dir", profiles)
	if !strings.Contains(out, "exists") {
		t.Fatalf("second init should keep the file: %s", out)
	}
	if out, err := runRootCommand(t, "agent", "import", filepath.Join(profiles, "zoe.yaml")); err != nil {
		t.Fatalf("import scaffold: %v\n%s", err, out)
	}
}

func TestDoctorReportsModelFailure(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PAIRCLAW_OPENAI_API_KEY", "")
	out, err := runRootCommand(t, "doctor")
	if err == nil {
		t.Fatalf("expected failing model check, got:\n%s", out)
	}
	if !strings.Contains(out, "[PASS] database") || !strings.Contains(out, "[FAIL] model openai/gpt-4o-mini") {
		t.Fatalf("unexpected doctor output:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] kafka") {
		t.Fatalf("disabled kafka should warn:\n%s", out)
	}
}

func TestAgentSetupWithoutModelLeavesNoAgent(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PAIRCLAW_OPENAI_API_KEY", "")
	if _, err := runRootCommand(t, "agent", "setup", "zoe"); err == nil {
		t.Fatal("setup without a message should fail")
	}
	if _, err := runRootCommand(t, "agent", "setup", "zoe", "I", "play", "chess"); err == nil {
		t.Fatal("setup without a reachable model should fail")
	}
	if _, err := runRootCommand(t, "agent", "show", "zoe"); err == nil {
		t.Fatal("failed setup must not register the agent")
	}
}
