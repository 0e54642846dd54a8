// Package config provides configuration types and loading for pairclaw.
package config

import (
	"strings"
	"time"
)

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Negotiation, Matching, Events,
// Notify, PromptGuard.
type Config struct {
	Paths       PathsConfig       `json:"paths"`
	Model       ModelConfig       `json:"model"`
	Providers   ProvidersConfig   `json:"providers"`
	Negotiation NegotiationConfig `json:"negotiation"`
	Matching    MatchingConfig    `json:"matching"`
	Events      EventsConfig      `json:"events"`
	Notify      NotifyConfig      `json:"notify"`
	PromptGuard PromptGuardConfig `json:"promptGuard"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Home     string `json:"home" envconfig:"HOME_DIR"`
	Database string `json:"database" envconfig:"DATABASE"`
	Profiles string `json:"profiles" envconfig:"PROFILES"`
}

// ---------------------------------------------------------------------------
// Model – reasoning backend behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups model defaults and the set owners may choose from.
type ModelConfig struct {
	// Name is the default "provider/model" for agents without a defense model.
	Name string `json:"name" envconfig:"MODEL"`
	// Available restricts which models owners may select. Empty allows any.
	Available   []string `json:"available" envconfig:"AVAILABLE"`
	MaxTokens   int      `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64  `json:"temperature" envconfig:"TEMPERATURE"`
	// Orchestrator runs the central judge and the public-info verifier.
	Orchestrator string `json:"orchestrator" envconfig:"ORCHESTRATOR"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	Gemini     ProviderConfig `json:"gemini"`
	Mistral    ProviderConfig `json:"mistral"`
	VLLM       ProviderConfig `json:"vllm"`
	Ollama     ProviderConfig `json:"ollama"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Negotiation – dialogue bounds and defense defaults
// ---------------------------------------------------------------------------

// NegotiationConfig bounds every negotiation attempt.
type NegotiationConfig struct {
	MaxTurns    int           `json:"maxTurns" envconfig:"MAX_TURNS"`
	MaxRetries  int           `json:"maxRetries" envconfig:"MAX_RETRIES"`
	TurnTimeout time.Duration `json:"turnTimeout" envconfig:"TURN_TIMEOUT"`
	// DefaultStrategy applies to agents that never selected a variant.
	DefaultStrategy string `json:"defaultStrategy" envconfig:"DEFAULT_STRATEGY"`
	// SpotlightMode is one of "delimit", "datamark", "encode".
	SpotlightMode string `json:"spotlightMode" envconfig:"SPOTLIGHT_MODE"`
	// MaxConcLLM caps in-flight model calls across all attempts.
	MaxConcLLM int `json:"maxConcLLM" envconfig:"MAX_CONC_LLM"`
}

// ---------------------------------------------------------------------------
// Matching – periodic candidate discovery
// ---------------------------------------------------------------------------

// MatchingConfig controls the periodic matching pass.
type MatchingConfig struct {
	Enabled       bool          `json:"enabled" envconfig:"ENABLED"`
	Interval      time.Duration `json:"interval" envconfig:"INTERVAL"`
	MaxConcurrent int           `json:"maxConcurrent" envconfig:"MAX_CONCURRENT"`
}

// ---------------------------------------------------------------------------
// Events – relation event stream
// ---------------------------------------------------------------------------

// EventsConfig configures the Kafka relation event stream.
type EventsConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"ENABLED"`
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	Topic        string `json:"topic" envconfig:"TOPIC"`
	// SecurityProtocol is PLAINTEXT, SSL, SASL_PLAINTEXT or SASL_SSL.
	SecurityProtocol string `json:"securityProtocol" envconfig:"SECURITY_PROTOCOL"`
	// SASLMechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
	SASLMechanism string `json:"saslMechanism" envconfig:"SASL_MECHANISM"`
	SASLUsername  string `json:"saslUsername" envconfig:"SASL_USERNAME"`
	SASLPassword  string `json:"saslPassword" envconfig:"SASL_PASSWORD"`
	CAFile        string `json:"caFile,omitempty" envconfig:"CA_FILE"`
	CertFile      string `json:"certFile,omitempty" envconfig:"CERT_FILE"`
	KeyFile       string `json:"keyFile,omitempty" envconfig:"KEY_FILE"`
}

// Brokers splits KafkaBrokers into trimmed, non-empty addresses.
func (c EventsConfig) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Notify – owner notifications
// ---------------------------------------------------------------------------

// NotifyConfig configures owner notifications over Slack.
type NotifyConfig struct {
	Enabled         bool   `json:"enabled" envconfig:"ENABLED"`
	SlackWebhookURL string `json:"slackWebhookUrl" envconfig:"SLACK_WEBHOOK_URL"`
}

// ---------------------------------------------------------------------------
// PromptGuard – scanning of counterpart text before it reaches a model
// ---------------------------------------------------------------------------

// PromptGuardConfig configures the prompt guard middleware.
type PromptGuardConfig struct {
	Enabled bool `json:"enabled" envconfig:"ENABLED"`
	// Mode is "warn" (tag only), "redact", or "block".
	Mode           string         `json:"mode" envconfig:"MODE"`
	DenyKeywords   []string       `json:"denyKeywords" envconfig:"DENY_KEYWORDS"`
	CustomPatterns []NamedPattern `json:"customPatterns,omitempty" ignored:"true"`
}

// NamedPattern is a user-supplied regex with a label.
type NamedPattern struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Home:     "~/.pairclaw",
			Database: "~/.pairclaw/pairclaw.db",
			Profiles: "~/.pairclaw/profiles",
		},
		Model: ModelConfig{
			Name:        "openai/gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Negotiation: NegotiationConfig{
			MaxTurns:        6,
			MaxRetries:      2,
			TurnTimeout:     60 * time.Second,
			DefaultStrategy: "spotlight",
			SpotlightMode:   "datamark",
			MaxConcLLM:      4,
		},
		Matching: MatchingConfig{
			Enabled:       false,
			Interval:      10 * time.Minute,
			MaxConcurrent: 4,
		},
		Events: EventsConfig{
			Enabled:          false,
			Topic:            "pairclaw.relations",
			SecurityProtocol: "PLAINTEXT",
		},
		PromptGuard: PromptGuardConfig{
			Enabled: true,
			Mode:    "warn",
		},
	}
}
