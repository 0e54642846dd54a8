package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KafClaw/PairClaw/internal/relation"
)

// ErrDuplicate is returned when a relation already exists for the pair.
var ErrDuplicate = errors.New("relation already exists for pair")

const relationColumns = `id, party_a, party_b, initiator, status,
	agent_decision_a, agent_decision_b, human_decision_a, human_decision_b,
	disclosed_to_a, disclosed_to_b, strategy, diagnostic, created_at, last_transition_at`

// CreateRelation inserts r. At most one relation exists per unordered pair.
func (s *Store) CreateRelation(ctx context.Context, r *relation.Relation) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO relations
		(id, pair_key, party_a, party_b, initiator, status,
		 agent_decision_a, agent_decision_b, human_decision_a, human_decision_b,
		 disclosed_to_a, disclosed_to_b, strategy, diagnostic, created_at, last_transition_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING`,
		r.ID, r.Key(), r.PartyA, r.PartyB, r.Initiator, string(r.Status),
		string(r.AgentDecisionA), string(r.AgentDecisionB),
		string(r.HumanDecisionA), string(r.HumanDecisionB),
		r.DisclosedToA, r.DisclosedToB, r.Strategy, r.Diagnostic,
		r.CreatedAt.UTC(), r.LastTransitionAt.UTC())
	if err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", r.Key(), ErrDuplicate)
	}
	return nil
}

// GetRelation loads a relation by ID.
func (s *Store) GetRelation(ctx context.Context, id string) (*relation.Relation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relationColumns+` FROM relations WHERE id = ?`, id)
	r, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relation %s: %w", id, ErrNotFound)
	}
	return r, err
}

// GetRelationByPair loads the relation for the unordered pair {a, b}.
func (s *Store) GetRelationByPair(ctx context.Context, a, b string) (*relation.Relation, error) {
	key := relation.PairKey(a, b)
	row := s.db.QueryRowContext(ctx, `SELECT `+relationColumns+` FROM relations WHERE pair_key = ?`, key)
	r, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relation %s: %w", key, ErrNotFound)
	}
	return r, err
}

// UpdateRelation writes every mutable column of r.
func (s *Store) UpdateRelation(ctx context.Context, r *relation.Relation) error {
	res, err := s.db.ExecContext(ctx, `UPDATE relations SET
		initiator = ?, status = ?,
		agent_decision_a = ?, agent_decision_b = ?,
		human_decision_a = ?, human_decision_b = ?,
		disclosed_to_a = ?, disclosed_to_b = ?,
		strategy = ?, diagnostic = ?, last_transition_at = ?
		WHERE id = ?`,
		r.Initiator, string(r.Status),
		string(r.AgentDecisionA), string(r.AgentDecisionB),
		string(r.HumanDecisionA), string(r.HumanDecisionB),
		r.DisclosedToA, r.DisclosedToB, r.Strategy, r.Diagnostic,
		r.LastTransitionAt.UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("update relation %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("relation %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// CompareAndSetStatus moves a relation from one status to another only if it
// is still in from. It reports whether the row was updated.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, from, to relation.Status, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE relations SET status = ?, last_transition_at = ?
		WHERE id = ? AND status = ?`, string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("set relation status %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListRelations returns every relation involving owner, newest first.
func (s *Store) ListRelations(ctx context.Context, owner string) ([]*relation.Relation, error) {
	return s.queryRelations(ctx, `SELECT `+relationColumns+` FROM relations
		WHERE party_a = ? OR party_b = ? ORDER BY last_transition_at DESC`, owner, owner)
}

// ListRelationsByStatus returns every relation in status.
func (s *Store) ListRelationsByStatus(ctx context.Context, status relation.Status) ([]*relation.Relation, error) {
	return s.queryRelations(ctx, `SELECT `+relationColumns+` FROM relations
		WHERE status = ? ORDER BY last_transition_at ASC`, string(status))
}

func (s *Store) queryRelations(ctx context.Context, q string, args ...any) ([]*relation.Relation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*relation.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelation(sc scanner) (*relation.Relation, error) {
	var (
		r                       relation.Relation
		status                  string
		agA, agB, huA, huB      string
		createdAt, transitioned time.Time
	)
	if err := sc.Scan(&r.ID, &r.PartyA, &r.PartyB, &r.Initiator, &status,
		&agA, &agB, &huA, &huB,
		&r.DisclosedToA, &r.DisclosedToB, &r.Strategy, &r.Diagnostic,
		&createdAt, &transitioned); err != nil {
		return nil, err
	}
	r.Status = relation.Status(status)
	r.AgentDecisionA = relation.Decision(agA)
	r.AgentDecisionB = relation.Decision(agB)
	r.HumanDecisionA = relation.Decision(huA)
	r.HumanDecisionB = relation.Decision(huB)
	r.CreatedAt = createdAt.UTC()
	r.LastTransitionAt = transitioned.UTC()
	return &r, nil
}
