package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"proposal-backend/internal/billing"
	"proposal-backend/internal/invoke"
	"proposal-backend/internal/llm"
	"proposal-backend/internal/usage"
)

// fakeAnalyst answers every pipeline prompt with deterministic JSON. The
// score is deliberately out of range to exercise clamping.
type fakeAnalyst struct {
	score float64
	fail  error
}

func (f *fakeAnalyst) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.fail != nil {
		return llm.Response{}, f.fail
	}
	usageStats := &llm.Usage{InputTokens: 1000, OutputTokens: 500}
	switch {
	case strings.Contains(req.Prompt, "Extract the distinct"):
		return llm.Response{Content: `{"statements": ["claim one", "claim two"]}`, Model: req.Model, Usage: usageStats}, nil
	case strings.Contains(req.Prompt, "downstream impacts"):
		claim := claimFromPrompt(req.Prompt)
		return llm.Response{Content: fmt.Sprintf(`{"impacts": ["impact of %s"]}`, claim), Model: req.Model, Usage: usageStats}, nil
	case strings.Contains(req.Prompt, "Group these numbered impacts"):
		return llm.Response{Content: `{"categories": {"economic": [0], "social": [1]}}`, Model: req.Model, Usage: usageStats}, nil
	case strings.Contains(req.Prompt, "Summarize the relevant evidence"):
		return llm.Response{Content: `{"findings": "mixed but mostly positive evidence"}`, Model: req.Model, Usage: usageStats}, nil
	case strings.Contains(req.Prompt, "score the net effect"):
		return llm.Response{Content: fmt.Sprintf(`{"score": %v}`, f.score), Model: req.Model, Usage: usageStats}, nil
	case strings.Contains(req.Prompt, "overall assessment"):
		return llm.Response{Content: `{"summary": "net positive overall"}`, Model: req.Model, Usage: usageStats}, nil
	default:
		return llm.Response{}, fmt.Errorf("unexpected prompt: %s", req.Prompt)
	}
}

func claimFromPrompt(prompt string) string {
	idx := strings.Index(prompt, "Claim: ")
	if idx < 0 {
		return ""
	}
	rest := prompt[idx+len("Claim: "):]
	return strings.TrimSpace(strings.SplitN(rest, "\n", 2)[0])
}

func setupService(t *testing.T, client llm.Client, allowance float64) (*Service, *MemoryRepo, *billing.Service, *usage.Service) {
	t.Helper()
	repo := NewMemoryRepo()
	billingSvc := billing.NewService(billing.NewMemoryStore(), allowance)
	usageSvc := usage.NewService(usage.NewMemoryStore(), usage.NewPriceTable())

	opts := invoke.Options{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	}
	invoker := invoke.New(client, opts, usageSvc, nil)
	svc := NewService(repo, billingSvc, usageSvc, invoker, []string{"gpt-4o-mini"}, 0.50)
	return svc, repo, billingSvc, usageSvc
}

func TestRunAnalysisEndToEnd(t *testing.T) {
	svc, _, billingSvc, usageSvc := setupService(t, &fakeAnalyst{score: 1.7}, 10.00)
	ctx := context.Background()

	final, err := svc.RunAnalysis(ctx, "Build free public transit", "user-1", "analysis-1")
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}

	if len(final.Statements) != 2 {
		t.Fatalf("expected 2 statements, got %v", final.Statements)
	}
	if len(final.Impacts) != 2 {
		t.Fatalf("expected 2 impacts, got %v", final.Impacts)
	}
	// Impacts come back in statement order even though generation fans out.
	for i, statement := range final.Statements {
		if final.Impacts[i].Statement != statement {
			t.Fatalf("impact %d attached to %q, expected %q", i, final.Impacts[i].Statement, statement)
		}
	}

	// Every impact lands in exactly one category.
	total := 0
	for _, impacts := range final.Categories {
		total += len(impacts)
	}
	if total != len(final.Impacts) {
		t.Fatalf("categories hold %d impacts, expected %d", total, len(final.Impacts))
	}

	for name, score := range final.Scores {
		if score < -1 || score > 1 {
			t.Fatalf("score for %q out of range: %v", name, score)
		}
		if score != 1 {
			t.Fatalf("expected out-of-range score to clamp to 1, got %v", score)
		}
		if final.Findings[name] == "" {
			t.Fatalf("missing findings for %q", name)
		}
	}
	if final.Summary == "" {
		t.Fatalf("expected non-empty summary")
	}

	// Usage was metered per attempt and the run cost was debited.
	summary, err := usageSvc.SummaryByAnalysis(ctx, "analysis-1")
	if err != nil {
		t.Fatalf("SummaryByAnalysis: %v", err)
	}
	if summary.CallCount == 0 || summary.TotalCost <= 0 {
		t.Fatalf("expected metered usage, got %#v", summary)
	}
	balance, err := billingSvc.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Balance >= 10.00 {
		t.Fatalf("expected balance to be debited, got %v", balance.Balance)
	}
}

func TestRunAnalysisInsufficientBalance(t *testing.T) {
	svc, _, _, _ := setupService(t, &fakeAnalyst{score: 0.5}, 0.25)

	_, err := svc.RunAnalysis(context.Background(), "Build free public transit", "user-1", "analysis-1")
	if !errors.Is(err, billing.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestRunAnalysisRequiresInput(t *testing.T) {
	svc, _, _, _ := setupService(t, &fakeAnalyst{}, 10.00)

	if _, err := svc.RunAnalysis(context.Background(), "   ", "user-1", ""); err == nil {
		t.Fatalf("expected error for blank proposal")
	}
	if _, err := svc.RunAnalysis(context.Background(), "proposal", "", ""); err == nil {
		t.Fatalf("expected error for missing user")
	}
}

func TestCompleteAsyncTransitionsToCompleted(t *testing.T) {
	svc, repo, _, _ := setupService(t, &fakeAnalyst{score: 0.3}, 10.00)
	ctx := context.Background()

	analysis := Analysis{
		ID:           "analysis-1",
		UserID:       "user-1",
		ProposalText: "Build free public transit",
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, analysis); err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	svc.completeAsync(ctx, analysis.ID)

	got, err := repo.GetByID(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%s)", got.Status, got.ErrorMessage)
	}
	if got.Result == nil || got.Result.Summary == "" {
		t.Fatalf("expected stored result with summary")
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("expected started/completed timestamps to be set")
	}
}

func TestCompleteAsyncProviderExhaustionMarksFailed(t *testing.T) {
	svc, repo, _, _ := setupService(t, &fakeAnalyst{fail: errors.New("upstream 503")}, 10.00)
	ctx := context.Background()

	analysis := Analysis{
		ID:           "analysis-1",
		UserID:       "user-1",
		ProposalText: "Build free public transit",
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, analysis); err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	svc.completeAsync(ctx, analysis.ID)

	got, err := repo.GetByID(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.ErrorCode != ErrorCodeProviderExhausted {
		t.Fatalf("expected %s, got %q", ErrorCodeProviderExhausted, got.ErrorCode)
	}
	if got.Result != nil {
		t.Fatalf("failed run must not carry a partial result")
	}
}

func TestStartRejectsInsufficientBalanceBeforeQueueing(t *testing.T) {
	svc, repo, _, _ := setupService(t, &fakeAnalyst{score: 0.1}, 0.25)

	_, err := svc.Start(context.Background(), "Build free public transit", "user-1")
	if !errors.Is(err, billing.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	runs, err := repo.ListByUser(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected nothing queued, got %d runs", len(runs))
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{billing.ErrInsufficientBalance, ErrorCodeInsufficientBalance},
		{&invoke.ExhaustedError{Models: 1, Attempts: 4, LastErr: errors.New("x")}, ErrorCodeProviderExhausted},
		{&llm.PermanentError{Provider: "openai", StatusCode: 400, Message: "bad"}, ErrorCodeProvider},
		{fmt.Errorf("deduct cost: %w", errors.New("db down")), ErrorCodeLedger},
		{fmt.Errorf("usage summary: %w", errors.New("db down")), ErrorCodeLedger},
		{errors.New("something else"), ErrorCodeInternal},
	}
	for _, tc := range cases {
		if got := errorCodeFor(tc.err); got != tc.want {
			t.Fatalf("errorCodeFor(%v) = %q, expected %q", tc.err, got, tc.want)
		}
	}
}
