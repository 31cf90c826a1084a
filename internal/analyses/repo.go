package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis runs.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
}

// StatusUpdate carries one status transition for an analysis run.
type StatusUpdate struct {
	ID           string
	Status       string
	Result       *AnalysisState
	ErrorCode    string
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
