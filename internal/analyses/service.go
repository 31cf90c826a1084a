package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"proposal-backend/internal/billing"
	"proposal-backend/internal/invoke"
	"proposal-backend/internal/llm"
	"proposal-backend/internal/shared/metrics"
	"proposal-backend/internal/shared/telemetry"
	"proposal-backend/internal/usage"
)

// Service runs proposal analyses: pre-flight balance check, the five-stage
// pipeline, usage-based debit, and run persistence.
type Service struct {
	Repo             Repo
	Billing          *billing.Service
	Usage            *usage.Service
	Pipeline         *Pipeline
	EstimatedRunCost float64
}

// NewService wires a Service around an invoker and its candidate models.
func NewService(repo Repo, billingSvc *billing.Service, usageSvc *usage.Service, invoker *invoke.Invoker, candidates []string, estimatedRunCost float64) *Service {
	if estimatedRunCost <= 0 {
		estimatedRunCost = 0.50
	}
	stages := &Stages{Invoker: invoker, Candidates: candidates}
	return &Service{
		Repo:             repo,
		Billing:          billingSvc,
		Usage:            usageSvc,
		Pipeline:         NewPipeline(stages),
		EstimatedRunCost: estimatedRunCost,
	}
}

// RunAnalysis executes the full pipeline for one proposal and settles the
// cost. It returns the final state or the first stage failure; nothing
// partial is handed to any collaborator on failure.
func (s *Service) RunAnalysis(ctx context.Context, proposalText, userID, analysisID string) (AnalysisState, error) {
	if strings.TrimSpace(proposalText) == "" || userID == "" {
		return AnalysisState{}, errors.New("proposalText and userID are required")
	}
	if analysisID == "" {
		analysisID = uuid.NewString()
	}

	// Pre-flight: the pipeline body never runs without funds.
	ok, err := s.Billing.HasSufficientBalance(ctx, userID, s.EstimatedRunCost)
	if err != nil {
		return AnalysisState{}, fmt.Errorf("balance check: %w", err)
	}
	if !ok {
		return AnalysisState{}, billing.ErrInsufficientBalance
	}

	ctx = invoke.WithAnalysisID(ctx, analysisID)
	ctx = invoke.WithUserID(ctx, userID)

	started := time.Now()
	metrics.IncPipelineStarted()
	state := AnalysisState{
		AnalysisID:   analysisID,
		UserID:       userID,
		ProposalText: proposalText,
	}
	final, err := s.Pipeline.Run(ctx, state)
	if err != nil {
		metrics.IncPipelineFailed()
		return AnalysisState{}, err
	}
	metrics.IncPipelineCompleted()
	metrics.ObservePipelineDurationMs(float64(time.Since(started).Milliseconds()))

	if err := s.settleCost(ctx, userID, analysisID); err != nil {
		// Ledger correctness is not best-effort: surface it.
		return AnalysisState{}, err
	}
	return final, nil
}

// settleCost debits the accumulated usage cost of the run. A false deduct
// means the run overshot the remaining balance; the work is already done, so
// it is logged rather than unwound.
func (s *Service) settleCost(ctx context.Context, userID, analysisID string) error {
	// Record writes are dispatched asynchronously; settle only once every
	// attempt of this run has landed in the store.
	s.Usage.Flush()
	summary, err := s.Usage.SummaryByAnalysis(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("usage summary: %w", err)
	}
	if summary.TotalCost <= 0 {
		return nil
	}
	ok, err := s.Billing.DeductCost(ctx, userID, summary.TotalCost, analysisID)
	if err != nil {
		return fmt.Errorf("deduct cost: %w", err)
	}
	if !ok {
		telemetry.Warn("analysis.cost_exceeded_balance", map[string]any{
			"analysis_id": analysisID,
			"user_id":     userID,
			"cost":        summary.TotalCost,
		})
	}
	return nil
}

// Start creates a queued run and completes it asynchronously. The balance
// pre-flight happens here so callers get an immediate insufficient-balance
// answer before anything is enqueued.
func (s *Service) Start(ctx context.Context, proposalText, userID string) (Analysis, error) {
	if strings.TrimSpace(proposalText) == "" || userID == "" {
		return Analysis{}, errors.New("proposalText and userID are required")
	}

	ok, err := s.Billing.HasSufficientBalance(ctx, userID, s.EstimatedRunCost)
	if err != nil {
		return Analysis{}, err
	}
	if !ok {
		return Analysis{}, billing.ErrInsufficientBalance
	}

	analysis := Analysis{
		ID:           uuid.NewString(),
		UserID:       userID,
		ProposalText: proposalText,
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, err
	}

	go s.completeAsync(context.WithoutCancel(ctx), analysis.ID)

	return analysis, nil
}

// Get returns an analysis run by ID.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	if analysisID == "" {
		return Analysis{}, errors.New("analysisID is required")
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// List returns a user's runs, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) completeAsync(ctx context.Context, analysisID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failAnalysis(ctx, analysisID, fmt.Errorf("panic: %v", r))
		}
	}()

	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		telemetry.Error("analysis.lookup_failed", map[string]any{"analysis_id": analysisID, "error": err.Error()})
		return
	}

	startedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatus(ctx, StatusUpdate{ID: analysisID, Status: StatusProcessing, StartedAt: &startedAt}); err != nil {
		s.failAnalysis(ctx, analysisID, fmt.Errorf("set processing: %w", err))
		return
	}
	telemetry.Info("analysis.status", map[string]any{
		"analysis_id":       analysisID,
		"user_id":           analysis.UserID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})

	final, err := s.RunAnalysis(ctx, analysis.ProposalText, analysis.UserID, analysisID)
	if err != nil {
		s.failAnalysis(ctx, analysisID, err)
		return
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatus(ctx, StatusUpdate{
		ID:          analysisID,
		Status:      StatusCompleted,
		Result:      &final,
		CompletedAt: &completedAt,
	}); err != nil {
		telemetry.Error("analysis.save_failed", map[string]any{"analysis_id": analysisID, "error": err.Error()})
		return
	}
	telemetry.Info("analysis.status", map[string]any{
		"analysis_id":       analysisID,
		"user_id":           analysis.UserID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
	})
}

func (s *Service) failAnalysis(ctx context.Context, analysisID string, cause error) {
	completedAt := time.Now().UTC()
	code := errorCodeFor(cause)
	if err := s.Repo.UpdateStatus(ctx, StatusUpdate{
		ID:           analysisID,
		Status:       StatusFailed,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		CompletedAt:  &completedAt,
	}); err != nil {
		telemetry.Error("analysis.fail_update_failed", map[string]any{"analysis_id": analysisID, "error": err.Error()})
	}
	telemetry.Error("analysis.failed", map[string]any{
		"analysis_id": analysisID,
		"error_code":  code,
		"error":       cause.Error(),
	})
}

func errorCodeFor(err error) string {
	var exhausted *invoke.ExhaustedError
	switch {
	case errors.Is(err, billing.ErrInsufficientBalance):
		return ErrorCodeInsufficientBalance
	case errors.As(err, &exhausted):
		return ErrorCodeProviderExhausted
	case llm.IsPermanent(err):
		return ErrorCodeProvider
	case strings.Contains(err.Error(), "deduct cost"), strings.Contains(err.Error(), "usage summary"):
		return ErrorCodeLedger
	default:
		return ErrorCodeInternal
	}
}
