package store

import "context"

// LogEvent appends a relation event to the audit log.
func (s *Store) LogEvent(ctx context.Context, rec *EventRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events_log
		(event_id, relation_id, event_type, owner_id, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.RelationID, rec.Type, rec.OwnerID, rec.Status, rec.Detail)
	return err
}

// ListEvents returns the log for one relation in insertion order.
func (s *Store) ListEvents(ctx context.Context, relationID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, event_id, COALESCE(relation_id,''), event_type,
		COALESCE(owner_id,''), COALESCE(status,''), COALESCE(detail,''), created_at
		FROM events_log WHERE relation_id = ? ORDER BY id ASC`, relationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.ID, &r.EventID, &r.RelationID, &r.Type,
			&r.OwnerID, &r.Status, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
