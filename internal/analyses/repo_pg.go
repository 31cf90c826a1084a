package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo persists analysis runs in Postgres. The result state is stored as
// JSONB.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	resultJSON, err := marshalResult(analysis.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
INSERT INTO analyses (id, user_id, proposal_text, status, result, error_code, error_message, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		analysis.ID,
		analysis.UserID,
		analysis.ProposalText,
		analysis.Status,
		resultJSON,
		nullableString(analysis.ErrorCode),
		nullableString(analysis.ErrorMessage),
		analysis.CreatedAt,
		analysis.StartedAt,
		analysis.CompletedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT id, user_id, proposal_text, status, result, COALESCE(error_code, ''), COALESCE(error_message, ''), created_at, started_at, completed_at
FROM analyses WHERE id = $1`, analysisID)

	var analysis Analysis
	var resultJSON []byte
	err := row.Scan(
		&analysis.ID,
		&analysis.UserID,
		&analysis.ProposalText,
		&analysis.Status,
		&resultJSON,
		&analysis.ErrorCode,
		&analysis.ErrorMessage,
		&analysis.CreatedAt,
		&analysis.StartedAt,
		&analysis.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	if len(resultJSON) > 0 {
		var state AnalysisState
		if err := json.Unmarshal(resultJSON, &state); err != nil {
			return Analysis{}, fmt.Errorf("decode analysis result: %w", err)
		}
		analysis.Result = &state
	}
	return analysis, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	resultJSON, err := marshalResult(update.Result)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `
UPDATE analyses
SET status = $1,
    result = COALESCE($2, result),
    error_code = $3,
    error_message = $4,
    started_at = COALESCE($5, started_at),
    completed_at = COALESCE($6, completed_at)
WHERE id = $7`,
		update.Status,
		resultJSON,
		nullableString(update.ErrorCode),
		nullableString(update.ErrorMessage),
		update.StartedAt,
		update.CompletedAt,
		update.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, user_id, proposal_text, status, COALESCE(error_code, ''), COALESCE(error_message, ''), created_at, started_at, completed_at
FROM analyses WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var analysis Analysis
		if err := rows.Scan(
			&analysis.ID,
			&analysis.UserID,
			&analysis.ProposalText,
			&analysis.Status,
			&analysis.ErrorCode,
			&analysis.ErrorMessage,
			&analysis.CreatedAt,
			&analysis.StartedAt,
			&analysis.CompletedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, analysis)
	}
	return out, rows.Err()
}

func marshalResult(state *AnalysisState) (any, error) {
	if state == nil {
		return nil, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	return data, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
