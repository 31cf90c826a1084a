package usage

import "context"

// Store defines persistence for usage records.
type Store interface {
	Create(ctx context.Context, record Record) (Record, error)
	SummaryByAnalysis(ctx context.Context, analysisID string) (Summary, error)
	ListByAnalysis(ctx context.Context, analysisID string) ([]Record, error)
}
