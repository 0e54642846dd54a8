package store

import "time"

// Schema is applied on every open; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	owner_id TEXT PRIMARY KEY,
	strictness INTEGER NOT NULL DEFAULT 0,
	lifecycle TEXT NOT NULL DEFAULT 'unset',
	public_items TEXT NOT NULL DEFAULT '[]',
	private_items TEXT NOT NULL DEFAULT '[]',
	policies TEXT NOT NULL DEFAULT '[]',
	active_models TEXT NOT NULL DEFAULT '[]',
	defense_variant TEXT NOT NULL DEFAULT '',
	defense_models TEXT NOT NULL DEFAULT '[]',
	screening_questions TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_agents_lifecycle ON agents(lifecycle);

CREATE TABLE IF NOT EXISTS relations (
	id TEXT PRIMARY KEY,
	pair_key TEXT UNIQUE NOT NULL,
	party_a TEXT NOT NULL,
	party_b TEXT NOT NULL,
	initiator TEXT NOT NULL,
	status TEXT NOT NULL,
	agent_decision_a TEXT NOT NULL DEFAULT 'PENDING',
	agent_decision_b TEXT NOT NULL DEFAULT 'PENDING',
	human_decision_a TEXT NOT NULL DEFAULT 'PENDING',
	human_decision_b TEXT NOT NULL DEFAULT 'PENDING',
	disclosed_to_a TEXT NOT NULL DEFAULT '',
	disclosed_to_b TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	diagnostic TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	last_transition_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_party_a ON relations(party_a);
CREATE INDEX IF NOT EXISTS idx_relations_party_b ON relations(party_b);
CREATE INDEX IF NOT EXISTS idx_relations_status ON relations(status);

CREATE TABLE IF NOT EXISTS human_reviews (
	review_id TEXT PRIMARY KEY,
	relation_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	counterpart_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	responded_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_reviews_owner ON human_reviews(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_reviews_relation ON human_reviews(relation_id);

CREATE TABLE IF NOT EXISTS events_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	relation_id TEXT,
	event_type TEXT NOT NULL,
	owner_id TEXT,
	status TEXT,
	detail TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_relation ON events_log(relation_id);
`

// Review status values.
const (
	ReviewPending   = "pending"
	ReviewAccepted  = "accepted"
	ReviewRejected  = "rejected"
	ReviewCancelled = "cancelled"
)

// ReviewRecord is one owner's pending or answered human review.
type ReviewRecord struct {
	ReviewID      string     `json:"review_id"`
	RelationID    string     `json:"relation_id"`
	OwnerID       string     `json:"owner_id"`
	CounterpartID string     `json:"counterpart_id"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

// EventRecord is a row of the relation audit log.
type EventRecord struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	RelationID string    `json:"relation_id"`
	Type       string    `json:"type"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
