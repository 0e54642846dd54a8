// Package approval gates relations on human review: once both agents accept,
// each owner gets a pending review that they answer exactly once.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/KafClaw/PairClaw/internal/relation"
	"github.com/KafClaw/PairClaw/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrNoPendingReview is returned when the owner has nothing to answer.
	ErrNoPendingReview = errors.New("no pending review")
	// ErrReviewCancelled is returned to waiters whose review was closed by a
	// rejection, reset or deletion instead of an answer.
	ErrReviewCancelled = errors.New("review cancelled")
)

type outcome struct {
	decision relation.Decision
	err      error
}

// Review is one owner's view of a relation awaiting human feedback.
type Review struct {
	ReviewID    string
	RelationID  string
	Owner       string
	Counterpart string
	// Disclosed is the sanitized summary the owner's agent received.
	Disclosed string
}

// Manager opens, answers and waits on human reviews.
type Manager struct {
	mu      sync.Mutex
	waiters map[string][]chan outcome
	store   *store.Store
}

// NewManager creates a review manager backed by st.
func NewManager(st *store.Store) *Manager {
	return &Manager{
		waiters: make(map[string][]chan outcome),
		store:   st,
	}
}

// Open creates one pending review per party of r. Parties that already have
// a pending review are skipped.
func (m *Manager) Open(ctx context.Context, r *relation.Relation) ([]Review, error) {
	var out []Review
	for _, owner := range []string{r.PartyA, r.PartyB} {
		if _, err := m.store.GetPendingReview(ctx, r.ID, owner); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return out, err
		}
		rec := &store.ReviewRecord{
			ReviewID:      uuid.NewString(),
			RelationID:    r.ID,
			OwnerID:       owner,
			CounterpartID: r.Counterpart(owner),
		}
		if err := m.store.InsertReview(ctx, rec); err != nil {
			return out, fmt.Errorf("open review for %s: %w", owner, err)
		}
		disclosed := r.DisclosedToA
		if owner == r.PartyB {
			disclosed = r.DisclosedToB
		}
		out = append(out, Review{
			ReviewID:    rec.ReviewID,
			RelationID:  r.ID,
			Owner:       owner,
			Counterpart: rec.CounterpartID,
			Disclosed:   disclosed,
		})
	}
	return out, nil
}

// Respond closes the owner's pending review with decision and wakes waiters.
func (m *Manager) Respond(ctx context.Context, relationID, owner string, decision relation.Decision) error {
	rec, err := m.store.GetPendingReview(ctx, relationID, owner)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s on %s", ErrNoPendingReview, owner, relationID)
	}
	if err != nil {
		return err
	}
	status := store.ReviewRejected
	if decision == relation.Accept {
		status = store.ReviewAccepted
	}
	if err := m.store.UpdateReviewStatus(ctx, rec.ReviewID, status); err != nil {
		return fmt.Errorf("close review %s: %w", rec.ReviewID, err)
	}
	m.wake(waitKey(relationID, owner), outcome{decision: decision})
	return nil
}

// Cancel closes every review still pending on a relation, e.g. after a
// rejection or reset. Waiters get Reject with ErrReviewCancelled.
func (m *Manager) Cancel(ctx context.Context, relationID string) {
	n, err := m.store.CancelReviews(ctx, relationID)
	if err != nil {
		slog.Warn("Failed to cancel reviews", "relation", relationID, "error", err)
	}
	if n > 0 {
		slog.Debug("Cancelled pending reviews", "relation", relationID, "count", n)
	}
	prefix := relationID + "|"
	m.mu.Lock()
	var keys []string
	for key := range m.waiters {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	for _, key := range keys {
		m.wake(key, outcome{decision: relation.Reject, err: ErrReviewCancelled})
	}
}

// Pending lists the owner's open reviews.
func (m *Manager) Pending(ctx context.Context, owner string) ([]store.ReviewRecord, error) {
	return m.store.ListPendingReviews(ctx, owner)
}

// Wait blocks until owner answers the review on relationID, the review is
// cancelled or ctx expires. A review answered before the call returns its
// decision right away.
func (m *Manager) Wait(ctx context.Context, relationID, owner string) (relation.Decision, error) {
	key := waitKey(relationID, owner)
	ch := make(chan outcome, 1)
	m.mu.Lock()
	m.waiters[key] = append(m.waiters[key], ch)
	m.mu.Unlock()

	// The waiter is registered before the store is read so an answer landing
	// in between still wakes it.
	rec, err := m.store.LatestReview(ctx, relationID, owner)
	if err != nil {
		m.drop(key, ch)
		if errors.Is(err, store.ErrNotFound) {
			return relation.Pending, fmt.Errorf("%w: %s on %s", ErrNoPendingReview, owner, relationID)
		}
		return relation.Pending, err
	}
	switch rec.Status {
	case store.ReviewAccepted:
		m.drop(key, ch)
		return relation.Accept, nil
	case store.ReviewRejected:
		m.drop(key, ch)
		return relation.Reject, nil
	case store.ReviewCancelled:
		m.drop(key, ch)
		return relation.Reject, ErrReviewCancelled
	}

	select {
	case o := <-ch:
		return o.decision, o.err
	case <-ctx.Done():
		m.drop(key, ch)
		return relation.Pending, ctx.Err()
	}
}

func waitKey(relationID, owner string) string {
	return relationID + "|" + owner
}

func (m *Manager) wake(key string, o outcome) {
	m.mu.Lock()
	chans := m.waiters[key]
	delete(m.waiters, key)
	m.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- o:
		default:
		}
	}
}

func (m *Manager) drop(key string, ch chan outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.waiters[key]
	for i, c := range list {
		if c == ch {
			m.waiters[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(m.waiters[key]) == 0 {
		delete(m.waiters, key)
	}
}
