package analyses

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"proposal-backend/internal/invoke"
)

const defaultFanOutLimit = 4

// fallbackCategory collects impacts the model failed to assign anywhere.
const fallbackCategory = "other"

// Stages implements the five pipeline stages on top of the invocation layer.
// The evaluate stage runs its research and scoring sub-steps sequentially per
// category; only the impact generation stage fans out, and its results are
// merged back in statement order regardless of completion order.
type Stages struct {
	Invoker     *invoke.Invoker
	Candidates  []string
	FanOutLimit int
}

// Extract pulls distinct claims out of the proposal text.
func (s *Stages) Extract(ctx context.Context, state AnalysisState) (StageOutput, error) {
	resp, err := s.Invoker.Call(ctx, extractRequest(state.ProposalText), s.Candidates)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Statements []string `json:"statements"`
	}
	if err := decodeJSONContent(resp.Content, &parsed); err != nil {
		return nil, err
	}

	statements := make([]string, 0, len(parsed.Statements))
	for _, raw := range parsed.Statements {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("no claims extracted from proposal")
	}
	return ExtractOutput{Statements: statements}, nil
}

// GenerateImpacts fans out one call per statement and merges the results back
// in the original statement order.
func (s *Stages) GenerateImpacts(ctx context.Context, state AnalysisState) (StageOutput, error) {
	limit := s.FanOutLimit
	if limit <= 0 {
		limit = defaultFanOutLimit
	}

	perStatement := make([][]Impact, len(state.Statements))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, statement := range state.Statements {
		i, statement := i, statement
		g.Go(func() error {
			resp, err := s.Invoker.Call(groupCtx, impactsRequest(state.ProposalText, statement), s.Candidates)
			if err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
			var parsed struct {
				Impacts []string `json:"impacts"`
			}
			if err := decodeJSONContent(resp.Content, &parsed); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
			impacts := make([]Impact, 0, len(parsed.Impacts))
			for _, raw := range parsed.Impacts {
				if trimmed := strings.TrimSpace(raw); trimmed != "" {
					impacts = append(impacts, Impact{Statement: statement, Text: trimmed})
				}
			}
			if len(impacts) == 0 {
				return fmt.Errorf("statement %d: no impacts generated", i)
			}
			perStatement[i] = impacts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Impact
	for _, impacts := range perStatement {
		merged = append(merged, impacts...)
	}
	return ImpactsOutput{Impacts: merged}, nil
}

// Categorize partitions every impact into exactly one category. Indices the
// model drops are collected under a fallback category and duplicates keep
// their first assignment, so no impact is lost or double counted.
func (s *Stages) Categorize(ctx context.Context, state AnalysisState) (StageOutput, error) {
	resp, err := s.Invoker.Call(ctx, categorizeRequest(state.Impacts), s.Candidates)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Categories map[string][]int `json:"categories"`
	}
	if err := decodeJSONContent(resp.Content, &parsed); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(parsed.Categories))
	for name := range parsed.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make(map[string][]Impact)
	assigned := make([]bool, len(state.Impacts))
	for _, name := range names {
		cleaned := strings.ToLower(strings.TrimSpace(name))
		if cleaned == "" {
			cleaned = fallbackCategory
		}
		for _, idx := range parsed.Categories[name] {
			if idx < 0 || idx >= len(state.Impacts) || assigned[idx] {
				continue
			}
			assigned[idx] = true
			categories[cleaned] = append(categories[cleaned], state.Impacts[idx])
		}
	}
	for idx, ok := range assigned {
		if !ok {
			categories[fallbackCategory] = append(categories[fallbackCategory], state.Impacts[idx])
		}
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories produced")
	}
	return CategorizeOutput{Categories: categories}, nil
}

// Evaluate researches then scores each category, sequentially.
func (s *Stages) Evaluate(ctx context.Context, state AnalysisState) (StageOutput, error) {
	names := make([]string, 0, len(state.Categories))
	for name := range state.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	findings := make(map[string]string, len(names))
	scores := make(map[string]float64, len(names))
	for _, name := range names {
		finding, err := s.research(ctx, name, state.Categories[name])
		if err != nil {
			return nil, fmt.Errorf("research %q: %w", name, err)
		}
		findings[name] = finding

		score, err := s.score(ctx, name, finding)
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", name, err)
		}
		scores[name] = score
	}
	return EvaluateOutput{Findings: findings, Scores: scores}, nil
}

func (s *Stages) research(ctx context.Context, category string, impacts []Impact) (string, error) {
	resp, err := s.Invoker.Call(ctx, researchRequest(category, impacts), s.Candidates)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Findings string `json:"findings"`
	}
	if err := decodeJSONContent(resp.Content, &parsed); err != nil {
		return "", err
	}
	finding := strings.TrimSpace(parsed.Findings)
	if finding == "" {
		return "", fmt.Errorf("empty findings")
	}
	return finding, nil
}

func (s *Stages) score(ctx context.Context, category, findings string) (float64, error) {
	resp, err := s.Invoker.Call(ctx, scoreRequest(category, findings), s.Candidates)
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := decodeJSONContent(resp.Content, &parsed); err != nil {
		return 0, err
	}
	return clampScore(parsed.Score), nil
}

// Summarize writes the final assessment.
func (s *Stages) Summarize(ctx context.Context, state AnalysisState) (StageOutput, error) {
	resp, err := s.Invoker.Call(ctx, summarizeRequest(state), s.Candidates)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := decodeJSONContent(resp.Content, &parsed); err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		return nil, fmt.Errorf("empty summary")
	}
	return SummaryOutput{Summary: summary}, nil
}

func clampScore(score float64) float64 {
	if score < -1 {
		return -1
	}
	if score > 1 {
		return 1
	}
	return score
}
