package usage

import (
	"context"
	"sync"
)

// MemoryStore keeps usage records in memory for dev mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore constructs an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(ctx context.Context, record Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return record, nil
}

func (s *MemoryStore) SummaryByAnalysis(ctx context.Context, analysisID string) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := Summary{AnalysisID: analysisID}
	for _, r := range s.records {
		if r.AnalysisID != analysisID {
			continue
		}
		summary.CallCount++
		if !r.Success {
			summary.FailedCalls++
		}
		summary.InputTokens += r.InputTokens
		summary.OutputTokens += r.OutputTokens
		summary.TotalCost += r.Cost
	}
	return summary, nil
}

func (s *MemoryStore) ListByAnalysis(ctx context.Context, analysisID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.AnalysisID == analysisID {
			out = append(out, r)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
