package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".pairclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("PAIRCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("PAIRCLAW_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load loads the configuration from file and environment variables.
// Priority: environment > env file > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}
	if files := loadEnvFiles(path); len(files) > 0 {
		slog.Debug("Env files loaded", "files", files)
	}
	data, err := loadResolvedConfig(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Fallback for API keys
	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Providers.OpenRouter.APIKey == "" {
		cfg.Providers.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	expandHome(&cfg.Paths.Home)
	expandHome(&cfg.Paths.Database)
	expandHome(&cfg.Paths.Profiles)

	normalize(cfg)
	return cfg, nil
}

// envFileKeys are the non-PAIRCLAW_ variables an env file may set.
var envFileKeys = map[string]bool{
	"OPENAI_API_KEY":     true,
	"ANTHROPIC_API_KEY":  true,
	"OPENROUTER_API_KEY": true,
}

// loadEnvFiles exports settings from PAIRCLAW_ENV_FILE and from the env
// file beside the config file. Only PAIRCLAW_ settings and provider keys
// are taken, and variables already set win. PAIRCLAW_HOME and
// PAIRCLAW_CONFIG are ignored since the config path is already resolved.
// It returns the files that were read.
func loadEnvFiles(configPath string) []string {
	candidates := []string{filepath.Join(filepath.Dir(configPath), "env")}
	if explicit := strings.TrimSpace(os.Getenv("PAIRCLAW_ENV_FILE")); explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	var read []string
	seen := map[string]bool{}
	for _, p := range candidates {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := loadEnvFile(p); err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("Env file unreadable", "path", p, "error", err)
			}
			continue
		}
		read = append(read, p)
	}
	return read
}

func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimPrefix(strings.TrimSpace(line), "export ")
		key, val, found := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" || strings.HasPrefix(key, "#") {
			continue
		}
		if !envFileKeys[key] && !strings.HasPrefix(key, "PAIRCLAW_") {
			continue
		}
		if key == "PAIRCLAW_HOME" || key == "PAIRCLAW_CONFIG" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		_ = os.Setenv(key, val)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	groups := []struct {
		prefix string
		spec   any
	}{
		{"PAIRCLAW_PATHS", &cfg.Paths},
		{"PAIRCLAW_MODEL", &cfg.Model},
		{"PAIRCLAW_OPENAI", &cfg.Providers.OpenAI},
		{"PAIRCLAW_ANTHROPIC", &cfg.Providers.Anthropic},
		{"PAIRCLAW_OPENROUTER", &cfg.Providers.OpenRouter},
		{"PAIRCLAW_DEEPSEEK", &cfg.Providers.DeepSeek},
		{"PAIRCLAW_GROQ", &cfg.Providers.Groq},
		{"PAIRCLAW_GEMINI", &cfg.Providers.Gemini},
		{"PAIRCLAW_MISTRAL", &cfg.Providers.Mistral},
		{"PAIRCLAW_VLLM", &cfg.Providers.VLLM},
		{"PAIRCLAW_OLLAMA", &cfg.Providers.Ollama},
		{"PAIRCLAW_NEGOTIATION", &cfg.Negotiation},
		{"PAIRCLAW_MATCHING", &cfg.Matching},
		{"PAIRCLAW_EVENTS", &cfg.Events},
		{"PAIRCLAW_NOTIFY", &cfg.Notify},
		{"PAIRCLAW_PROMPT_GUARD", &cfg.PromptGuard},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.spec); err != nil {
			return fmt.Errorf("config: env %s: %w", g.prefix, err)
		}
	}
	return nil
}

// normalize repairs out-of-range values so callers never see a zero bound.
func normalize(cfg *Config) {
	def := DefaultConfig()
	n := &cfg.Negotiation
	if n.MaxTurns <= 0 {
		n.MaxTurns = def.Negotiation.MaxTurns
	}
	if n.MaxRetries < 0 {
		n.MaxRetries = 0
	}
	if n.TurnTimeout <= 0 {
		n.TurnTimeout = def.Negotiation.TurnTimeout
	}
	if n.MaxConcLLM <= 0 {
		n.MaxConcLLM = def.Negotiation.MaxConcLLM
	}
	n.DefaultStrategy = strings.ToLower(strings.TrimSpace(n.DefaultStrategy))
	if n.DefaultStrategy == "" {
		n.DefaultStrategy = def.Negotiation.DefaultStrategy
	}
	switch strings.ToLower(strings.TrimSpace(n.SpotlightMode)) {
	case "delimit", "datamark", "encode":
		n.SpotlightMode = strings.ToLower(strings.TrimSpace(n.SpotlightMode))
	default:
		n.SpotlightMode = def.Negotiation.SpotlightMode
	}
	if cfg.Matching.Interval <= 0 {
		cfg.Matching.Interval = def.Matching.Interval
	}
	if cfg.Matching.MaxConcurrent <= 0 {
		cfg.Matching.MaxConcurrent = def.Matching.MaxConcurrent
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = def.Events.Topic
	}
	cfg.Events.SecurityProtocol = strings.ToUpper(strings.TrimSpace(cfg.Events.SecurityProtocol))
	if cfg.Events.SecurityProtocol == "" {
		cfg.Events.SecurityProtocol = def.Events.SecurityProtocol
	}
	cfg.Events.SASLMechanism = strings.ToUpper(strings.TrimSpace(cfg.Events.SASLMechanism))
	switch strings.ToLower(strings.TrimSpace(cfg.PromptGuard.Mode)) {
	case "warn", "redact", "block":
		cfg.PromptGuard.Mode = strings.ToLower(strings.TrimSpace(cfg.PromptGuard.Mode))
	default:
		cfg.PromptGuard.Mode = "warn"
	}
	if cfg.Model.Orchestrator == "" {
		cfg.Model.Orchestrator = cfg.Model.Name
	}
}

func expandHome(p *string) {
	if strings.HasPrefix(*p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			*p = filepath.Join(home, (*p)[1:])
		}
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func loadResolvedConfig(path string) ([]byte, error) {
	obj, err := loadConfigObject(path, map[string]struct{}{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// loadConfigObject reads path, resolving "$include" files first so the
// including file wins on conflicts.
func loadConfigObject(path string, visited map[string]struct{}) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, seen := visited[absPath]; seen {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	visited[absPath] = struct{}{}
	defer delete(visited, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}

	merged := map[string]any{}
	if includeRaw, ok := raw["$include"]; ok {
		includeFiles, err := parseIncludes(includeRaw)
		if err != nil {
			return nil, err
		}
		baseDir := filepath.Dir(absPath)
		for _, includePath := range includeFiles {
			resolvedPath := includePath
			if !filepath.IsAbs(includePath) {
				resolvedPath = filepath.Join(baseDir, includePath)
			}
			child, err := loadConfigObject(resolvedPath, visited)
			if err != nil {
				return nil, err
			}
			deepMerge(merged, child)
		}
	}
	delete(raw, "$include")
	substituteEnvValues(raw)
	deepMerge(merged, raw)
	return merged, nil
}

func parseIncludes(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("$include entries must be strings")
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("$include must be a string or array of strings")
	}
}

func deepMerge(dst, src map[string]any) {
	for key, val := range src {
		srcMap, srcIsMap := val.(map[string]any)
		if !srcIsMap {
			dst[key] = val
			continue
		}
		dstMap, dstIsMap := dst[key].(map[string]any)
		if !dstIsMap {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		deepMerge(dstMap, srcMap)
	}
}

// substituteEnvValues replaces ${VAR} references in string values with the
// variable's value. Unset variables are left as written.
func substituteEnvValues(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = substituteEnvValues(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = substituteEnvValues(item)
		}
		return t
	case string:
		return envPattern.ReplaceAllStringFunc(t, func(match string) string {
			parts := envPattern.FindStringSubmatch(match)
			if len(parts) != 2 {
				return match
			}
			if value, ok := os.LookupEnv(parts[1]); ok {
				return value
			}
			return match
		})
	default:
		return v
	}
}
