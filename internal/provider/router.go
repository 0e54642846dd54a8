package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/KafClaw/PairClaw/internal/config"
)

var (
	// ErrBackendUnavailable wraps every failure to obtain a model answer.
	ErrBackendUnavailable = errors.New("reasoning backend unavailable")
	// ErrPromptBlocked is returned when a guard refused to forward the prompt.
	ErrPromptBlocked = errors.New("prompt blocked by guard")
)

// Router implements invoke_model: it resolves "provider/model" identifiers to
// cached providers, caps in-flight calls, and returns the text answer.
type Router struct {
	cfg  *config.Config
	wrap func(LLMProvider) LLMProvider
	sem  *Semaphore

	mu        sync.Mutex
	providers map[string]LLMProvider
}

// NewRouter builds a router over cfg. wrap, when non-nil, decorates every
// resolved provider (the middleware chain plugs in here).
func NewRouter(cfg *config.Config, wrap func(LLMProvider) LLMProvider) *Router {
	return &Router{
		cfg:       cfg,
		wrap:      wrap,
		sem:       NewSemaphore(cfg.Negotiation.MaxConcLLM),
		providers: make(map[string]LLMProvider),
	}
}

// Register pins a provider for one model identifier, bypassing resolution.
func (r *Router) Register(model string, p LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wrap != nil {
		p = r.wrap(p)
	}
	r.providers[strings.TrimSpace(model)] = p
}

// Invoke sends prompt to model and returns the raw text answer.
func (r *Router) Invoke(ctx context.Context, model, prompt string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = r.cfg.Model.Name
	}
	prov, err := r.provider(model)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if err := r.sem.Acquire(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer r.sem.Release()

	_, name := ParseModelString(model)
	resp, err := prov.Chat(ctx, &ChatRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Model:       name,
		MaxTokens:   r.cfg.Model.MaxTokens,
		Temperature: r.cfg.Model.Temperature,
	})
	if err != nil {
		slog.Debug("Model call failed", "model", model, "error", err)
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if resp.FinishReason == FinishBlocked {
		slog.Warn("Model call blocked by guard", "model", model)
		return "", fmt.Errorf("%w: %s", ErrPromptBlocked, resp.Content)
	}
	slog.Debug("Model call finished", "model", model, "tokens", resp.Usage.TotalTokens)
	return resp.Content, nil
}

func (r *Router) provider(model string) (LLMProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[model]; ok {
		return p, nil
	}
	p, err := Build(r.cfg, model)
	if err != nil {
		return nil, err
	}
	if r.wrap != nil {
		p = r.wrap(p)
	}
	r.providers[model] = p
	return p, nil
}

// AvailableModels lists the models owners may select. An empty list means
// any resolvable model is accepted.
func (r *Router) AvailableModels() []string {
	return append([]string(nil), r.cfg.Model.Available...)
}

// Allowed reports whether model is in the configured selection list.
func (r *Router) Allowed(model string) bool {
	if len(r.cfg.Model.Available) == 0 {
		_, err := Build(r.cfg, model)
		return err == nil || r.registered(model)
	}
	for _, m := range r.cfg.Model.Available {
		if m == model {
			return true
		}
	}
	return false
}

func (r *Router) registered(model string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.providers[model]
	return ok
}
