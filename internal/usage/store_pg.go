package usage

import (
	"context"
	"database/sql"
)

// PGStore persists usage records in Postgres.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Create(ctx context.Context, record Record) (Record, error) {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO usage_records (id, analysis_id, user_id, model_name, input_tokens, output_tokens, cost, success, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		record.AnalysisID,
		record.UserID,
		record.ModelName,
		record.InputTokens,
		record.OutputTokens,
		record.Cost,
		record.Success,
		nullableString(record.ErrorMessage),
		record.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *PGStore) SummaryByAnalysis(ctx context.Context, analysisID string) (Summary, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE NOT success),
       COALESCE(SUM(input_tokens), 0),
       COALESCE(SUM(output_tokens), 0),
       COALESCE(SUM(cost), 0)
FROM usage_records WHERE analysis_id = $1`, analysisID)

	summary := Summary{AnalysisID: analysisID}
	if err := row.Scan(&summary.CallCount, &summary.FailedCalls, &summary.InputTokens, &summary.OutputTokens, &summary.TotalCost); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (s *PGStore) ListByAnalysis(ctx context.Context, analysisID string) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, analysis_id, user_id, model_name, input_tokens, output_tokens, cost, success, COALESCE(error_message, ''), created_at
FROM usage_records WHERE analysis_id = $1 ORDER BY created_at ASC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.AnalysisID, &r.UserID, &r.ModelName, &r.InputTokens, &r.OutputTokens, &r.Cost, &r.Success, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PGStore)(nil)
