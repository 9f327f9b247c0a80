package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"freebies_claimer/internal/model"
)

func (s *Store) RecordClaim(ctx context.Context, c model.ClaimRecord) (model.ClaimRecord, error) {
	if c.RunID == "" {
		return model.ClaimRecord{}, errors.New("runId is required")
	}
	if c.Email == "" {
		return model.ClaimRecord{}, errors.New("email is required")
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (run_id, email, title, offer_id, namespace, status, order_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.RunID, c.Email, c.Title, c.OfferID, c.Namespace, string(c.Status), c.OrderID, c.Error, c.At.UnixMilli())
	if err != nil {
		return model.ClaimRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ClaimRecord{}, err
	}
	c.ID = id
	return c, nil
}

// ListClaims returns the most recent claims first. limit <= 0 means 100.
func (s *Store) ListClaims(ctx context.Context, limit int) ([]model.ClaimRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, email, title, offer_id, namespace, status, order_id, error, created_at
		FROM claims ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ListClaimsByRun returns a run's claims in the order they were recorded.
func (s *Store) ListClaimsByRun(ctx context.Context, runID string) ([]model.ClaimRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, email, title, offer_id, namespace, status, order_id, error, created_at
		FROM claims WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]model.ClaimRecord, error) {
	var out []model.ClaimRecord
	for rows.Next() {
		var (
			c      model.ClaimRecord
			status string
			at     int64
		)
		if err := rows.Scan(&c.ID, &c.RunID, &c.Email, &c.Title, &c.OfferID, &c.Namespace, &status, &c.OrderID, &c.Error, &at); err != nil {
			return nil, err
		}
		c.Status = model.ClaimStatus(status)
		c.At = time.UnixMilli(at)
		out = append(out, c)
	}
	return out, rows.Err()
}
