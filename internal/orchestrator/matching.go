package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/negotiation"
	"github.com/KafClaw/PairClaw/internal/relation"
)

// MatchResult is the result of one candidate pairing in a matching pass.
type MatchResult struct {
	Counterpart string
	Relation    *relation.Relation
	Err         error
}

// MatchingPass finds every ACTIVE, strictness-compatible counterpart of owner
// with no live relation and connects to it. Pairs are negotiated concurrently
// up to the configured limit.
func (s *Service) MatchingPass(ctx context.Context, owner string) ([]MatchResult, error) {
	self, err := s.liveAgent(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !self.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotEligible, owner, self.Lifecycle)
	}
	candidates, err := s.candidates(ctx, self)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		slog.Debug("Matching pass found no candidates", "owner", owner)
		return nil, nil
	}

	p := pool.NewWithResults[MatchResult]().WithMaxGoroutines(s.matching.MaxConcurrent)
	for _, c := range candidates {
		p.Go(func() MatchResult {
			r, err := s.Connect(ctx, owner, c)
			return MatchResult{Counterpart: c, Relation: r, Err: err}
		})
	}
	results := p.Wait()

	connected := 0
	for _, res := range results {
		switch {
		case res.Err == nil:
			connected++
		case errors.Is(res.Err, negotiation.ErrConcurrentAttempt), errors.Is(res.Err, ErrNotEligible):
			slog.Debug("Matching candidate skipped", "owner", owner, "counterpart", res.Counterpart, "reason", res.Err)
		default:
			slog.Warn("Matching candidate failed", "owner", owner, "counterpart", res.Counterpart, "error", res.Err)
		}
	}
	slog.Info("Matching pass finished", "owner", owner, "candidates", len(candidates), "negotiated", connected)
	return results, nil
}

func (s *Service) candidates(ctx context.Context, self *identity.Identity) ([]string, error) {
	active, err := s.store.ListAgents(ctx, identity.LifecycleActive)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, other := range active {
		if other.OwnerID == self.OwnerID {
			continue
		}
		if c := s.policy.MutuallyCompatible(self, other); !c.Compatible {
			continue
		}
		r, err := s.store.GetRelationByPair(ctx, self.OwnerID, other.OwnerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if r != nil && r.Status != relation.StatusNone {
			continue
		}
		out = append(out, other.OwnerID)
	}
	return out, nil
}

// Serve recovers stale attempts, then runs a matching pass for every ACTIVE
// agent on each interval tick until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("orchestrator already serving")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.Recover(ctx); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	slog.Info("Matching loop started", "interval", s.matching.Interval, "max_concurrent", s.matching.MaxConcurrent)

	ticker := time.NewTicker(s.matching.Interval)
	defer ticker.Stop()
	for {
		s.matchAll(ctx)
		select {
		case <-ctx.Done():
			slog.Info("Matching loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) matchAll(ctx context.Context) {
	agents, err := s.store.ListAgents(ctx, identity.LifecycleActive)
	if err != nil {
		slog.Warn("Matching loop could not list agents", "error", err)
		return
	}
	for _, a := range agents {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.MatchingPass(ctx, a.OwnerID); err != nil && !errors.Is(err, ErrNotEligible) {
			slog.Warn("Matching pass failed", "owner", a.OwnerID, "error", err)
		}
	}
}
