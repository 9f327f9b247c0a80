package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"freebies_claimer/internal/model"
)

// StartRun registers a new pass and returns its generated ID.
func (s *Store) StartRun(ctx context.Context, pass int, accounts int, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pass, accounts, started_at) VALUES (?, ?, ?, ?)
	`, id, pass, accounts, startedAt.UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, finishedAt.UnixMilli(), runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetRun returns the run summary including its claims.
func (s *Store) GetRun(ctx context.Context, runID string) (model.RunSummary, error) {
	var (
		out               model.RunSummary
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pass, accounts, started_at, finished_at FROM runs WHERE id = ?
	`, runID).Scan(&out.RunID, &out.Pass, &out.Accounts, &started, &finished)
	if err != nil {
		return model.RunSummary{}, err
	}
	out.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		out.FinishedAt = time.UnixMilli(finished)
	}
	out.Claims, err = s.ListClaimsByRun(ctx, runID)
	if err != nil {
		return model.RunSummary{}, err
	}
	return out, nil
}

// ListRuns returns the most recent runs without their claims.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pass, accounts, started_at, finished_at FROM runs ORDER BY started_at DESC, pass DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var (
			r                 model.RunSummary
			started, finished int64
		)
		if err := rows.Scan(&r.RunID, &r.Pass, &r.Accounts, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
