package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/provider"
)

// PromptGuard scans outgoing prompts for deny-keywords, sensitive data and
// injection phrasing. Depending on mode it can warn (tag only), redact, or
// block. Injection hits are only tagged and logged: the defense strategies
// decide what to do with counterpart text.
type PromptGuard struct {
	cfg          config.PromptGuardConfig
	detector     *Detector
	denyKeywords []string
}

// NewPromptGuard builds a guard from config.
func NewPromptGuard(cfg config.PromptGuardConfig) *PromptGuard {
	return &PromptGuard{
		cfg:          cfg,
		detector:     NewDetector([]string{"email", "iban", "credit_card", "api_key", "bearer_token", "password_literal"}, cfg.CustomPatterns),
		denyKeywords: cfg.DenyKeywords,
	}
}

func (g *PromptGuard) Name() string { return "prompt-guard" }

func (g *PromptGuard) ProcessRequest(_ context.Context, req *provider.ChatRequest, meta *RequestMeta) error {
	if !g.cfg.Enabled {
		return nil
	}

	mode := g.cfg.Mode
	if mode == "" {
		mode = "warn"
	}

	// Scan user messages only.
	for i, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}

		// Deny keywords always block.
		found := ContainsKeywords(msg.Content, g.denyKeywords)
		if len(found) > 0 {
			meta.Blocked = true
			meta.BlockReason = fmt.Sprintf("denied keyword(s): %s", strings.Join(found, ", "))
			return nil
		}

		if hits := g.detector.ScanInjection(msg.Content); len(hits) > 0 {
			meta.Tags["injection"] = strings.Join(MatchTypes(hits), ",")
			slog.Warn("Prompt guard saw injection phrasing", "model", meta.ModelName, "types", meta.Tags["injection"])
		}

		matches := g.detector.Scan(msg.Content)
		if len(matches) == 0 {
			continue
		}

		switch mode {
		case "block":
			meta.Blocked = true
			meta.BlockReason = fmt.Sprintf("detected %s in message", strings.Join(MatchTypes(matches), ", "))
			return nil
		case "redact":
			req.Messages[i].Content = g.detector.Redact(msg.Content)
			meta.Tags["prompt_guard"] = "redacted"
		default: // "warn"
			meta.Tags["prompt_guard"] = "detected"
		}
	}

	return nil
}

func (g *PromptGuard) ProcessResponse(_ context.Context, _ *provider.ChatRequest, _ *provider.ChatResponse, _ *RequestMeta) error {
	// Answers are filtered per party by the negotiation privacy filter.
	return nil
}
