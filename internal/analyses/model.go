package analyses

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Analysis represents one pipeline run of a proposal.
type Analysis struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	ProposalText string         `json:"proposalText"`
	Status       string         `json:"status"`
	Result       *AnalysisState `json:"result,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// Impact is one downstream consequence generated for a claim.
type Impact struct {
	Statement string `json:"statement"`
	Text      string `json:"text"`
}

// AnalysisState is the evolving pipeline state. Stages never mutate it in
// place; each stage returns an output that is merged into a copy.
type AnalysisState struct {
	AnalysisID   string              `json:"analysisId"`
	UserID       string              `json:"userId"`
	ProposalText string              `json:"proposalText"`
	Statements   []string            `json:"statements,omitempty"`
	Impacts      []Impact            `json:"impacts,omitempty"`
	Categories   map[string][]Impact `json:"categories,omitempty"`
	Findings     map[string]string   `json:"findings,omitempty"`
	Scores       map[string]float64  `json:"scores,omitempty"`
	Summary      string              `json:"summary,omitempty"`
}

// StageOutput is the typed result of one stage. Each variant knows which
// state fields it fills in, so nothing passes through untyped maps.
type StageOutput interface {
	apply(state AnalysisState) AnalysisState
}

// ExtractOutput carries the claims extracted from the proposal.
type ExtractOutput struct {
	Statements []string
}

func (o ExtractOutput) apply(state AnalysisState) AnalysisState {
	state.Statements = append([]string(nil), o.Statements...)
	return state
}

// ImpactsOutput carries the generated downstream impacts, in statement order.
type ImpactsOutput struct {
	Impacts []Impact
}

func (o ImpactsOutput) apply(state AnalysisState) AnalysisState {
	state.Impacts = append([]Impact(nil), o.Impacts...)
	return state
}

// CategorizeOutput partitions the impacts into named categories.
type CategorizeOutput struct {
	Categories map[string][]Impact
}

func (o CategorizeOutput) apply(state AnalysisState) AnalysisState {
	categories := make(map[string][]Impact, len(o.Categories))
	for name, impacts := range o.Categories {
		categories[name] = append([]Impact(nil), impacts...)
	}
	state.Categories = categories
	return state
}

// EvaluateOutput carries per-category research findings and scores in [-1, 1].
type EvaluateOutput struct {
	Findings map[string]string
	Scores   map[string]float64
}

func (o EvaluateOutput) apply(state AnalysisState) AnalysisState {
	findings := make(map[string]string, len(o.Findings))
	for k, v := range o.Findings {
		findings[k] = v
	}
	scores := make(map[string]float64, len(o.Scores))
	for k, v := range o.Scores {
		scores[k] = v
	}
	state.Findings = findings
	state.Scores = scores
	return state
}

// SummaryOutput carries the final narrative summary.
type SummaryOutput struct {
	Summary string
}

func (o SummaryOutput) apply(state AnalysisState) AnalysisState {
	state.Summary = o.Summary
	return state
}
