package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/relation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pairclaw.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAgentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &identity.Identity{
		OwnerID:    "alice",
		Public:     []identity.Item{{ID: "industry", Content: "fintech"}},
		Private:    []identity.Item{{ID: "salary", Content: "120k"}},
		Policies:   []identity.Item{{ID: "p1", Content: "never share salary"}},
		Strictness: identity.StrictnessIndustry,
		Lifecycle:  identity.LifecycleActive,
		Defense:    identity.DefenseConfig{Variant: "dual_llm", Models: []string{"openai/a", "openai/b"}},
	}
	if err := s.SaveAgent(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetAgent(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Strictness != identity.StrictnessIndustry || got.Lifecycle != identity.LifecycleActive {
		t.Fatalf("unexpected agent: %+v", got)
	}
	if len(got.Private) != 1 || got.Private[0].Content != "120k" {
		t.Fatalf("private items lost: %+v", got.Private)
	}
	if got.Defense.QuarantinedModel() != "openai/b" {
		t.Fatalf("defense models lost: %+v", got.Defense)
	}

	in.Lifecycle = identity.LifecyclePaused
	if err := s.SaveAgent(ctx, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	active, err := s.ListAgents(ctx, identity.LifecycleActive)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active agents, got %d", len(active))
	}

	if _, err := s.GetAgent(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRelationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	r := relation.New("bob", "alice", now)
	_ = r.Transition(relation.StatusProposed, now)
	if err := s.CreateRelation(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := relation.New("alice", "bob", now)
	if err := s.CreateRelation(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	byPair, err := s.GetRelationByPair(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("by pair: %v", err)
	}
	if byPair.ID != r.ID || byPair.Initiator != "bob" || byPair.Status != relation.StatusProposed {
		t.Fatalf("unexpected relation: %+v", byPair)
	}
	if !byPair.CreatedAt.Equal(now) {
		t.Fatalf("created_at mismatch: %v", byPair.CreatedAt)
	}

	later := now.Add(time.Minute)
	ok, err := s.CompareAndSetStatus(ctx, r.ID, relation.StatusProposed, relation.StatusNegotiating, later)
	if err != nil || !ok {
		t.Fatalf("first CAS should win: ok=%v err=%v", ok, err)
	}
	ok, err = s.CompareAndSetStatus(ctx, r.ID, relation.StatusProposed, relation.StatusNegotiating, later)
	if err != nil || ok {
		t.Fatalf("second CAS should lose: ok=%v err=%v", ok, err)
	}

	got, err := s.GetRelation(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := got.ApplyAgentDecisions(relation.Accept, relation.Accept, later); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got.DisclosedToA = "- industry: fintech"
	if err := s.UpdateRelation(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	waiting, err := s.ListRelationsByStatus(ctx, relation.StatusAwaitingHuman)
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if len(waiting) != 1 || waiting[0].AgentDecisionB != relation.Accept || waiting[0].DisclosedToA == "" {
		t.Fatalf("unexpected awaiting list: %+v", waiting)
	}
	mine, err := s.ListRelations(ctx, "alice")
	if err != nil || len(mine) != 1 {
		t.Fatalf("list for alice: %v %d", err, len(mine))
	}
	if _, err := s.GetRelation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, rec := range []*ReviewRecord{
		{ReviewID: "r1", RelationID: "rel", OwnerID: "alice", CounterpartID: "bob"},
		{ReviewID: "r2", RelationID: "rel", OwnerID: "bob", CounterpartID: "alice"},
	} {
		if err := s.InsertReview(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	pending, err := s.ListPendingReviews(ctx, "alice")
	if err != nil || len(pending) != 1 || pending[0].CounterpartID != "bob" {
		t.Fatalf("pending for alice: %v %+v", err, pending)
	}
	if err := s.UpdateReviewStatus(ctx, "r1", ReviewAccepted); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.GetPendingReview(ctx, "rel", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("answered review should not be pending: %v", err)
	}
	n, err := s.CancelReviews(ctx, "rel")
	if err != nil || n != 1 {
		t.Fatalf("cancel: n=%d err=%v", n, err)
	}
	all, _ := s.ListPendingReviews(ctx, "")
	if len(all) != 0 {
		t.Fatalf("expected no pending reviews, got %d", len(all))
	}
}

func TestEventLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, typ := range []string{"proposed", "negotiated"} {
		if err := s.LogEvent(ctx, &EventRecord{EventID: typ, RelationID: "rel", Type: typ}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	events, err := s.ListEvents(ctx, "rel")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].Type != "proposed" || events[1].Type != "negotiated" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
