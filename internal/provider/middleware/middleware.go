// Package middleware provides a chain of interceptors between the router and
// the model provider. Middleware can inspect, transform, or block prompts
// before the model call and rewrite answers after it.
package middleware

import (
	"context"
	"fmt"

	"github.com/KafClaw/PairClaw/internal/provider"
)

// ChatMiddleware intercepts LLM requests and/or responses.
type ChatMiddleware interface {
	// Name returns a short identifier for logging.
	Name() string
	// ProcessRequest is called before the LLM call. It may modify the request,
	// set meta.Blocked, or return an error to abort.
	ProcessRequest(ctx context.Context, req *provider.ChatRequest, meta *RequestMeta) error
	// ProcessResponse is called after the LLM call. It may modify the response
	// or return an error to suppress delivery.
	ProcessResponse(ctx context.Context, req *provider.ChatRequest, resp *provider.ChatResponse, meta *RequestMeta) error
}

// RequestMeta carries mutable context through the chain.
type RequestMeta struct {
	ModelName   string            // resolved model
	Tags        map[string]string // classification tags (e.g. "injection":"detected")
	Blocked     bool              // set by PromptGuard to abort
	BlockReason string            // reason for blocking
}

// NewRequestMeta creates a RequestMeta with initialized Tags map.
func NewRequestMeta(modelName string) *RequestMeta {
	return &RequestMeta{
		ModelName: modelName,
		Tags:      make(map[string]string),
	}
}

// Chain holds an ordered list of middleware and a default provider.
// It runs pre-hooks in order, calls the provider, then runs post-hooks in order.
// A Chain is itself a provider.LLMProvider, so the router can use it in place
// of the provider it wraps.
type Chain struct {
	Middlewares []ChatMiddleware
	Provider    provider.LLMProvider
}

// NewChain creates a chain with the given provider and no middleware.
func NewChain(prov provider.LLMProvider) *Chain {
	return &Chain{
		Provider: prov,
	}
}

// Use appends middleware to the chain.
func (c *Chain) Use(mw ...ChatMiddleware) {
	c.Middlewares = append(c.Middlewares, mw...)
}

// Wrapper returns a decorator that puts mws in front of any provider.
func Wrapper(mws ...ChatMiddleware) func(provider.LLMProvider) provider.LLMProvider {
	return func(p provider.LLMProvider) provider.LLMProvider {
		c := NewChain(p)
		c.Use(mws...)
		return c
	}
}

// DefaultModel returns the wrapped provider's default model.
func (c *Chain) DefaultModel() string {
	return c.Provider.DefaultModel()
}

// Chat runs the chain with fresh request metadata.
func (c *Chain) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return c.Process(ctx, req, NewRequestMeta(req.Model))
}

// Process runs the middleware chain: pre-hooks → LLM call → post-hooks.
// If no middleware is configured, it's a zero-overhead passthrough.
func (c *Chain) Process(ctx context.Context, req *provider.ChatRequest, meta *RequestMeta) (*provider.ChatResponse, error) {
	if meta == nil {
		meta = NewRequestMeta(req.Model)
	}

	// Run pre-hooks.
	for _, mw := range c.Middlewares {
		if err := mw.ProcessRequest(ctx, req, meta); err != nil {
			return nil, fmt.Errorf("middleware %s pre-hook: %w", mw.Name(), err)
		}
		if meta.Blocked {
			return &provider.ChatResponse{
				Content:      fmt.Sprintf("[blocked by %s] %s", mw.Name(), meta.BlockReason),
				FinishReason: provider.FinishBlocked,
			}, nil
		}
	}

	resp, err := c.Provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	// Run post-hooks.
	for _, mw := range c.Middlewares {
		if err := mw.ProcessResponse(ctx, req, resp, meta); err != nil {
			return nil, fmt.Errorf("middleware %s post-hook: %w", mw.Name(), err)
		}
	}

	return resp, nil
}
