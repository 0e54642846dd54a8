package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PAIRCLAW_HOME", home)
	t.Setenv("PAIRCLAW_CONFIG", "")
	t.Setenv("PAIRCLAW_ENV_FILE", "")
	t.Setenv("OPENAI_API_KEY", "")
	return home
}

func TestConfigPathRespectsPairclawConfigAndHome(t *testing.T) {
	t.Setenv("PAIRCLAW_HOME", "/srv/pairhome")
	t.Setenv("PAIRCLAW_CONFIG", "~/.pairclaw/custom.json")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join("/srv/pairhome", ".pairclaw", "custom.json") {
		t.Fatalf("unexpected config path: %q", path)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Negotiation.MaxTurns != 6 || cfg.Negotiation.MaxRetries != 2 {
		t.Fatalf("unexpected negotiation defaults: %+v", cfg.Negotiation)
	}
	if cfg.Model.Orchestrator != cfg.Model.Name {
		t.Fatalf("orchestrator model should default to model name, got %q", cfg.Model.Orchestrator)
	}
	if cfg.Paths.Database != filepath.Join(home, ".pairclaw", "pairclaw.db") {
		t.Fatalf("expected expanded database path, got %q", cfg.Paths.Database)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".pairclaw")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := `{
  "model": {"name": "ollama/llama3", "available": ["ollama/llama3", "openai/gpt-4o"]},
  "negotiation": {"maxTurns": 4, "spotlightMode": "ENCODE", "defaultStrategy": " Judge "},
  "providers": {"openai": {"apiKey": "${TEST_PAIRCLAW_KEY}"}}
}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_PAIRCLAW_KEY", "sk-from-env")
	t.Setenv("PAIRCLAW_NEGOTIATION_MAX_TURNS", "8")
	t.Setenv("PAIRCLAW_NEGOTIATION_TURN_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Name != "ollama/llama3" || len(cfg.Model.Available) != 2 {
		t.Fatalf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.Negotiation.MaxTurns != 8 {
		t.Fatalf("env should override file, got %d turns", cfg.Negotiation.MaxTurns)
	}
	if cfg.Negotiation.TurnTimeout != 5*time.Second {
		t.Fatalf("expected 5s turn timeout, got %s", cfg.Negotiation.TurnTimeout)
	}
	if cfg.Negotiation.SpotlightMode != "encode" || cfg.Negotiation.DefaultStrategy != "judge" {
		t.Fatalf("expected normalized negotiation strings, got %+v", cfg.Negotiation)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-from-env" {
		t.Fatalf("expected ${VAR} substitution, got %q", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".pairclaw")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	base := `{"events": {"enabled": true, "kafkaBrokers": "localhost:9092", "topic": "base.topic"}}`
	main := `{"$include": "base.json", "events": {"topic": "main.topic"}}`
	if err := os.WriteFile(filepath.Join(dir, "base.json"), []byte(base), 0o600); err != nil {
		t.Fatalf("write base: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(main), 0o600); err != nil {
		t.Fatalf("write main: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Events.Enabled || cfg.Events.KafkaBrokers != "localhost:9092" {
		t.Fatalf("include values missing: %+v", cfg.Events)
	}
	if cfg.Events.Topic != "main.topic" {
		t.Fatalf("including file should win, got %q", cfg.Events.Topic)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".pairclaw")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{"$include": "config.json"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Notify.Enabled = true
	cfg.Notify.SlackWebhookURL = "https://hooks.example/1"
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Notify.Enabled || loaded.Notify.SlackWebhookURL != "https://hooks.example/1" {
		t.Fatalf("notify settings lost: %+v", loaded.Notify)
	}
}

func TestNormalizeRepairsBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Negotiation.MaxTurns = 0
	cfg.Negotiation.MaxRetries = -3
	cfg.Negotiation.SpotlightMode = "rot13"
	cfg.PromptGuard.Mode = "shout"
	normalize(cfg)
	if cfg.Negotiation.MaxTurns != 6 || cfg.Negotiation.MaxRetries != 0 {
		t.Fatalf("bounds not repaired: %+v", cfg.Negotiation)
	}
	if cfg.Negotiation.SpotlightMode != "datamark" || cfg.PromptGuard.Mode != "warn" {
		t.Fatalf("modes not repaired: %q %q", cfg.Negotiation.SpotlightMode, cfg.PromptGuard.Mode)
	}
}
