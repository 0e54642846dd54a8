package middleware

import (
	"context"
	"testing"

	"github.com/KafClaw/PairClaw/internal/provider"
)

// mockProvider is a simple test provider.
type mockProvider struct {
	response *provider.ChatResponse
	err      error
	called   bool
	lastReq  *provider.ChatRequest
}

func (m *mockProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	m.called = true
	m.lastReq = req
	return m.response, m.err
}

func (m *mockProvider) DefaultModel() string { return "mock-model" }

// blockMiddleware blocks requests.
type blockMiddleware struct{}

func (b *blockMiddleware) Name() string { return "blocker" }
func (b *blockMiddleware) ProcessRequest(_ context.Context, _ *provider.ChatRequest, meta *RequestMeta) error {
	meta.Blocked = true
	meta.BlockReason = "test block"
	return nil
}
func (b *blockMiddleware) ProcessResponse(_ context.Context, _ *provider.ChatRequest, _ *provider.ChatResponse, _ *RequestMeta) error {
	return nil
}

type orderTracker struct {
	name  string
	order *[]string
}

func (o *orderTracker) Name() string { return o.name }
func (o *orderTracker) ProcessRequest(_ context.Context, _ *provider.ChatRequest, _ *RequestMeta) error {
	*o.order = append(*o.order, o.name+"-pre")
	return nil
}
func (o *orderTracker) ProcessResponse(_ context.Context, _ *provider.ChatRequest, _ *provider.ChatResponse, _ *RequestMeta) error {
	*o.order = append(*o.order, o.name+"-post")
	return nil
}

func TestChain_Passthrough(t *testing.T) {
	mp := &mockProvider{response: &provider.ChatResponse{Content: "hello"}}
	chain := NewChain(mp)

	req := &provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	resp, err := chain.Process(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected 'hello', got %q", resp.Content)
	}
	if !mp.called {
		t.Error("expected provider to be called")
	}
}

func TestChain_BlockedRequest(t *testing.T) {
	mp := &mockProvider{response: &provider.ChatResponse{Content: "should not see"}}
	chain := NewChain(mp)
	chain.Use(&blockMiddleware{})

	req := &provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "blocked content"}}}
	resp, err := chain.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.FinishReason != provider.FinishBlocked {
		t.Errorf("expected finish_reason 'blocked', got %q", resp.FinishReason)
	}
	if mp.called {
		t.Error("expected provider NOT to be called when blocked")
	}
}

func TestChain_MultipleMiddlewareOrdering(t *testing.T) {
	mp := &mockProvider{response: &provider.ChatResponse{Content: "ok"}}
	order := make([]string, 0, 4)
	wrap := Wrapper(
		&orderTracker{name: "first", order: &order},
		&orderTracker{name: "second", order: &order},
	)
	prov := wrap(mp)
	if prov.DefaultModel() != "mock-model" {
		t.Fatalf("wrapped provider should report inner default model, got %q", prov.DefaultModel())
	}

	req := &provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	if _, err := prov.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	expected := []string{"first-pre", "second-pre", "first-post", "second-post"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d events, got %d: %v", len(expected), len(order), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("event[%d] = %q, want %q", i, order[i], v)
		}
	}
}
