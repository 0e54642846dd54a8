package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KafClaw/PairClaw/internal/identity"
)

// SaveAgent inserts or replaces an identity.
func (s *Store) SaveAgent(ctx context.Context, id *identity.Identity) error {
	pub, _ := json.Marshal(nonNilItems(id.Public))
	priv, _ := json.Marshal(nonNilItems(id.Private))
	pol, _ := json.Marshal(nonNilItems(id.Policies))
	active, _ := json.Marshal(nonNilStrings(id.ActiveModels))
	defModels, _ := json.Marshal(nonNilStrings(id.Defense.Models))
	questions, _ := json.Marshal(nonNilStrings(id.Questions))
	_, err := s.db.ExecContext(ctx, `INSERT INTO agents
		(owner_id, strictness, lifecycle, public_items, private_items, policies, active_models, defense_variant, defense_models, screening_questions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			strictness = excluded.strictness,
			lifecycle = excluded.lifecycle,
			public_items = excluded.public_items,
			private_items = excluded.private_items,
			policies = excluded.policies,
			active_models = excluded.active_models,
			defense_variant = excluded.defense_variant,
			defense_models = excluded.defense_models,
			screening_questions = excluded.screening_questions,
			updated_at = CURRENT_TIMESTAMP`,
		id.OwnerID, int(id.Strictness), string(id.Lifecycle),
		string(pub), string(priv), string(pol), string(active),
		id.Defense.Variant, string(defModels), string(questions))
	if err != nil {
		return fmt.Errorf("save agent %s: %w", id.OwnerID, err)
	}
	return nil
}

const agentColumns = `owner_id, strictness, lifecycle, public_items, private_items, policies, active_models, defense_variant, defense_models, screening_questions`

// GetAgent loads one identity.
func (s *Store) GetAgent(ctx context.Context, owner string) (*identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE owner_id = ?`, owner)
	id, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", owner, ErrNotFound)
	}
	return id, err
}

// ListAgents returns identities in owner order. An empty lifecycle lists all.
func (s *Store) ListAgents(ctx context.Context, lifecycle identity.Lifecycle) ([]*identity.Identity, error) {
	q := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if lifecycle != "" {
		q += ` WHERE lifecycle = ?`
		args = append(args, string(lifecycle))
	}
	q += ` ORDER BY owner_id ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*identity.Identity
	for rows.Next() {
		id, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(sc scanner) (*identity.Identity, error) {
	var (
		id                                       identity.Identity
		strictness                               int
		lifecycle, pub, priv, pol, active, defMs string
		questions                                string
	)
	if err := sc.Scan(&id.OwnerID, &strictness, &lifecycle, &pub, &priv, &pol, &active, &id.Defense.Variant, &defMs, &questions); err != nil {
		return nil, err
	}
	id.Strictness = identity.Strictness(strictness)
	id.Lifecycle = identity.Lifecycle(lifecycle)
	for _, f := range []struct {
		raw string
		dst any
	}{
		{pub, &id.Public},
		{priv, &id.Private},
		{pol, &id.Policies},
		{active, &id.ActiveModels},
		{defMs, &id.Defense.Models},
		{questions, &id.Questions},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decode agent %s: %w", id.OwnerID, err)
		}
	}
	return &id, nil
}

func nonNilItems(items []identity.Item) []identity.Item {
	if items == nil {
		return []identity.Item{}
	}
	return items
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
