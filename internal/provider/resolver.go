package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KafClaw/PairClaw/internal/config"
)

// providerAliases maps common aliases to canonical provider IDs.
var providerAliases = map[string]string{
	"anthropic": "claude",
	"google":    "gemini",
	"local":     "ollama",
}

// defaultBases holds the endpoint used when a provider has no apiBase set.
var defaultBases = map[string]string{
	"claude":     "https://api.anthropic.com/v1",
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"mistral":    "https://api.mistral.ai/v1",
	"ollama":     "http://localhost:11434/v1",
}

// NormalizeProviderID resolves aliases and normalizes the provider ID.
func NormalizeProviderID(id string) string {
	lower := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := providerAliases[lower]; ok {
		return canonical
	}
	return lower
}

// ParseModelString splits a "provider/model" string into provider ID and model name.
// For OpenRouter, the format is "openrouter/vendor/model" (three segments).
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	providerID = strings.ToLower(parts[0])
	modelName = parts[1]
	return
}

// SupportedProviders lists the canonical provider IDs the resolver can build.
func SupportedProviders() []string {
	out := make([]string, 0, len(defaultBases)+1)
	for id := range defaultBases {
		out = append(out, id)
	}
	out = append(out, "vllm")
	sort.Strings(out)
	return out
}

// Build constructs a provider for a "provider/model" identifier. A bare model
// name uses the OpenAI settings.
func Build(cfg *config.Config, modelStr string) (LLMProvider, error) {
	provID, model := ParseModelString(modelStr)
	if provID == "" {
		provID = "openai"
	}
	if model == "" {
		return nil, &ProviderError{Provider: provID, Hint: "model name is empty"}
	}
	return buildProvider(cfg, NormalizeProviderID(provID), model)
}

// buildProvider constructs a provider from its canonical ID and model name.
func buildProvider(cfg *config.Config, providerID, model string) (LLMProvider, error) {
	var pc config.ProviderConfig
	keyRequired := true
	switch providerID {
	case "claude":
		pc = cfg.Providers.Anthropic
	case "openai":
		pc = cfg.Providers.OpenAI
	case "openrouter":
		pc = cfg.Providers.OpenRouter
	case "deepseek":
		pc = cfg.Providers.DeepSeek
	case "groq":
		pc = cfg.Providers.Groq
	case "gemini":
		pc = cfg.Providers.Gemini
	case "mistral":
		pc = cfg.Providers.Mistral
	case "ollama":
		pc = cfg.Providers.Ollama
		keyRequired = false
	case "vllm":
		pc = cfg.Providers.VLLM
		keyRequired = false
		if pc.APIBase == "" {
			return nil, &ProviderError{Provider: "vllm", Hint: "set providers.vllm.apiBase in config (e.g. http://localhost:8000/v1)"}
		}
	default:
		return nil, &ProviderError{Provider: providerID, Hint: fmt.Sprintf("unknown provider ID %q, supported: %s", providerID, strings.Join(SupportedProviders(), ", "))}
	}

	if keyRequired && pc.APIKey == "" {
		return nil, &ProviderError{Provider: providerID, Hint: fmt.Sprintf("set providers.%s.apiKey in config or PAIRCLAW_%s_API_KEY", configKey(providerID), strings.ToUpper(configKey(providerID)))}
	}
	base := pc.APIBase
	if base == "" {
		base = defaultBases[providerID]
	}
	return NewOpenAIProvider(pc.APIKey, base, model), nil
}

func configKey(providerID string) string {
	if providerID == "claude" {
		return "anthropic"
	}
	return providerID
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}
