package analyses

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"proposal-backend/internal/invoke"
	"proposal-backend/internal/llm"
)

type staticClient struct {
	content string
}

func (c *staticClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Content: c.content, Model: req.Model, Usage: &llm.Usage{InputTokens: 1, OutputTokens: 1}}, nil
}

func newTestStages(client llm.Client) *Stages {
	opts := invoke.Options{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
	return &Stages{
		Invoker:    invoke.New(client, opts, nil, nil),
		Candidates: []string{"gpt-4o-mini"},
	}
}

func TestCategorizePartitionsEveryImpactExactlyOnce(t *testing.T) {
	// Duplicate, out-of-range and dropped indices: the stage must still
	// produce a clean partition.
	client := &staticClient{content: `{"categories": {"economic": [0, 0, 9], "Social ": [1]}}`}
	stages := newTestStages(client)

	state := AnalysisState{Impacts: []Impact{
		{Statement: "s", Text: "impact a"},
		{Statement: "s", Text: "impact b"},
		{Statement: "s", Text: "impact c"},
		{Statement: "s", Text: "impact d"},
	}}

	out, err := stages.Categorize(context.Background(), state)
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	categories := out.(CategorizeOutput).Categories

	total := 0
	seen := make(map[string]bool)
	for name, impacts := range categories {
		for _, impact := range impacts {
			if seen[impact.Text] {
				t.Fatalf("impact %q assigned twice", impact.Text)
			}
			seen[impact.Text] = true
			total++
		}
		if name != strings.ToLower(strings.TrimSpace(name)) {
			t.Fatalf("category name not normalized: %q", name)
		}
	}
	if total != len(state.Impacts) {
		t.Fatalf("partition holds %d impacts, expected %d", total, len(state.Impacts))
	}
	if len(categories["economic"]) != 1 {
		t.Fatalf("expected duplicate index to keep first assignment only, got %v", categories["economic"])
	}
	if len(categories["other"]) != 2 {
		t.Fatalf("expected dropped indices under fallback category, got %v", categories["other"])
	}
}

type slowFirstClient struct{}

func (c *slowFirstClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	claim := claimFromPrompt(req.Prompt)
	if claim == "first claim" {
		// Finish last so merge order cannot depend on completion order.
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	content := fmt.Sprintf(`{"impacts": ["impact of %s"]}`, claim)
	return llm.Response{Content: content, Model: req.Model, Usage: &llm.Usage{InputTokens: 1, OutputTokens: 1}}, nil
}

func TestGenerateImpactsPreservesStatementOrder(t *testing.T) {
	stages := newTestStages(&slowFirstClient{})
	stages.FanOutLimit = 3

	state := AnalysisState{
		ProposalText: "proposal",
		Statements:   []string{"first claim", "second claim", "third claim"},
	}
	out, err := stages.GenerateImpacts(context.Background(), state)
	if err != nil {
		t.Fatalf("GenerateImpacts: %v", err)
	}
	impacts := out.(ImpactsOutput).Impacts
	if len(impacts) != 3 {
		t.Fatalf("expected 3 impacts, got %d", len(impacts))
	}
	for i, statement := range state.Statements {
		if impacts[i].Statement != statement {
			t.Fatalf("impact %d belongs to %q, expected %q", i, impacts[i].Statement, statement)
		}
	}
}

func TestExtractRejectsEmptyClaims(t *testing.T) {
	client := &staticClient{content: `{"statements": ["  ", ""]}`}
	stages := newTestStages(client)

	if _, err := stages.Extract(context.Background(), AnalysisState{ProposalText: "p"}); err == nil {
		t.Fatalf("expected error when no claims survive trimming")
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-2.5, -1},
		{-1, -1},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3.14, 1},
	}
	for _, tc := range cases {
		if got := clampScore(tc.in); got != tc.want {
			t.Fatalf("clampScore(%v) = %v, expected %v", tc.in, got, tc.want)
		}
	}
}

func TestDecodeJSONContentToleratesFences(t *testing.T) {
	var parsed struct {
		Score float64 `json:"score"`
	}
	fenced := "```json\n{\"score\": 0.5}\n```"
	if err := decodeJSONContent(fenced, &parsed); err != nil {
		t.Fatalf("decodeJSONContent: %v", err)
	}
	if parsed.Score != 0.5 {
		t.Fatalf("expected 0.5, got %v", parsed.Score)
	}

	if err := decodeJSONContent("not json at all", &parsed); err == nil {
		t.Fatalf("expected error for non-JSON content")
	}
}
