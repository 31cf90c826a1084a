package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"proposal-backend/internal/invoke"
	"proposal-backend/internal/shared/telemetry"
)

// Service meters model call attempts and answers usage queries. It implements
// invoke.UsageHook.
type Service struct {
	Store  Store
	Prices *PriceTable

	writes sync.WaitGroup
}

// NewService constructs a Service.
func NewService(store Store, prices *PriceTable) *Service {
	if prices == nil {
		prices = NewPriceTable()
	}
	return &Service{Store: store, Prices: prices}
}

// RecordAttempt persists one usage record per call attempt. The write happens
// off the caller's goroutine: a slow or failing store must never delay or
// gate the call it is metering. Persistence failures are logged and
// swallowed. Flush waits for in-flight writes.
func (s *Service) RecordAttempt(ctx context.Context, attempt invoke.Attempt) {
	record := Record{
		ID:         uuid.NewString(),
		AnalysisID: attempt.AnalysisID,
		UserID:     attempt.UserID,
		ModelName:  attempt.Model,
		CreatedAt:  time.Now().UTC(),
	}
	if attempt.Err != nil {
		record.Success = false
		record.ErrorMessage = attempt.Err.Error()
	} else {
		record.Success = true
		if attempt.Usage != nil {
			record.InputTokens = attempt.Usage.InputTokens
			record.OutputTokens = attempt.Usage.OutputTokens
			record.Cost = s.Prices.CalculateCost(record.InputTokens, record.OutputTokens, record.ModelName)
		}
	}

	if s.Store == nil {
		return
	}
	// Detach from the caller's deadline: a timed-out attempt still gets its
	// record written.
	writeCtx := context.WithoutCancel(ctx)
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		defer func() {
			if r := recover(); r != nil {
				telemetry.Error("usage.record_panic", map[string]any{
					"analysis_id": record.AnalysisID,
					"panic":       fmt.Sprint(r),
				})
			}
		}()
		writeCtx, cancel := context.WithTimeout(writeCtx, 5*time.Second)
		defer cancel()
		if _, err := s.Store.Create(writeCtx, record); err != nil {
			telemetry.Error("usage.record_failed", map[string]any{
				"analysis_id": record.AnalysisID,
				"model":       record.ModelName,
				"error":       err.Error(),
			})
		}
	}()
}

// Flush blocks until every dispatched record write has finished. Callers that
// aggregate records for settlement flush first so no attempt is missed.
func (s *Service) Flush() {
	s.writes.Wait()
}

// SummaryByAnalysis returns aggregate totals for one analysis run.
func (s *Service) SummaryByAnalysis(ctx context.Context, analysisID string) (Summary, error) {
	return s.Store.SummaryByAnalysis(ctx, analysisID)
}

// ListByAnalysis returns all records for one analysis run.
func (s *Service) ListByAnalysis(ctx context.Context, analysisID string) ([]Record, error) {
	return s.Store.ListByAnalysis(ctx, analysisID)
}

var _ invoke.UsageHook = (*Service)(nil)
