package usage

import "time"

// Record captures one model call attempt. Records are immutable once created;
// failed attempts are recorded too, with zero cost.
type Record struct {
	ID           string    `json:"id"`
	AnalysisID   string    `json:"analysisId"`
	UserID       string    `json:"userId"`
	ModelName    string    `json:"modelName"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	Cost         float64   `json:"cost"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary aggregates records for one analysis run.
type Summary struct {
	AnalysisID   string  `json:"analysisId"`
	CallCount    int     `json:"callCount"`
	FailedCalls  int     `json:"failedCalls"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalCost    float64 `json:"totalCost"`
}
