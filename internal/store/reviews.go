package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertReview persists a new pending human review.
func (s *Store) InsertReview(ctx context.Context, rec *ReviewRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO human_reviews
		(review_id, relation_id, owner_id, counterpart_id, status)
		VALUES (?, ?, ?, ?, 'pending')`,
		rec.ReviewID, rec.RelationID, rec.OwnerID, rec.CounterpartID)
	return err
}

// UpdateReviewStatus sets the status and responded_at timestamp.
func (s *Store) UpdateReviewStatus(ctx context.Context, reviewID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE human_reviews SET status = ?, responded_at = datetime('now') WHERE review_id = ?`,
		status, reviewID)
	return err
}

// CancelReviews marks every pending review of a relation as cancelled.
func (s *Store) CancelReviews(ctx context.Context, relationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE human_reviews SET status = 'cancelled', responded_at = datetime('now')
		WHERE relation_id = ? AND status = 'pending'`, relationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetPendingReview returns the owner's pending review for a relation.
func (s *Store) GetPendingReview(ctx context.Context, relationID, owner string) (*ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT review_id, relation_id, owner_id, counterpart_id, status, created_at, responded_at
		FROM human_reviews WHERE relation_id = ? AND owner_id = ? AND status = 'pending'`, relationID, owner)
	rec, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review %s/%s: %w", relationID, owner, ErrNotFound)
	}
	return rec, err
}

// LatestReview returns the owner's most recent review for a relation in any
// status.
func (s *Store) LatestReview(ctx context.Context, relationID, owner string) (*ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT review_id, relation_id, owner_id, counterpart_id, status, created_at, responded_at
		FROM human_reviews WHERE relation_id = ? AND owner_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, relationID, owner)
	rec, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review %s/%s: %w", relationID, owner, ErrNotFound)
	}
	return rec, err
}

// ListPendingReviews returns pending reviews, all owners when owner is empty.
func (s *Store) ListPendingReviews(ctx context.Context, owner string) ([]ReviewRecord, error) {
	q := `SELECT review_id, relation_id, owner_id, counterpart_id, status, created_at, responded_at
		FROM human_reviews WHERE status = 'pending'`
	var args []any
	if owner != "" {
		q += ` AND owner_id = ?`
		args = append(args, owner)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReviewRecord
	for rows.Next() {
		rec, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanReview(sc scanner) (*ReviewRecord, error) {
	var r ReviewRecord
	var respondedAt sql.NullTime
	if err := sc.Scan(&r.ReviewID, &r.RelationID, &r.OwnerID, &r.CounterpartID,
		&r.Status, &r.CreatedAt, &respondedAt); err != nil {
		return nil, err
	}
	if respondedAt.Valid {
		r.RespondedAt = &respondedAt.Time
	}
	return &r, nil
}
