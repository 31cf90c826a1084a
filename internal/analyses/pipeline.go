package analyses

import (
	"context"
	"fmt"
	"time"

	"proposal-backend/internal/shared/telemetry"
)

// StageFunc runs one pipeline stage against the current state.
type StageFunc func(ctx context.Context, state AnalysisState) (StageOutput, error)

type stage struct {
	name string
	run  StageFunc
}

// Pipeline drives the fixed five-stage analysis chain:
// extract -> impacts -> categorize -> evaluate -> summarize.
type Pipeline struct {
	stages []stage
}

// NewPipeline wires the fixed stage chain.
func NewPipeline(stages *Stages) *Pipeline {
	return &Pipeline{stages: []stage{
		{name: "extract", run: stages.Extract},
		{name: "impacts", run: stages.GenerateImpacts},
		{name: "categorize", run: stages.Categorize},
		{name: "evaluate", run: stages.Evaluate},
		{name: "summarize", run: stages.Summarize},
	}}
}

// Run applies each stage in order, merging its typed output into a copy of
// the state. The first stage error aborts the run; no subsequent stage
// executes and nothing is committed to any collaborator here.
func (p *Pipeline) Run(ctx context.Context, state AnalysisState) (AnalysisState, error) {
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return AnalysisState{}, err
		}
		started := time.Now()
		out, err := st.run(ctx, state)
		if err != nil {
			return AnalysisState{}, fmt.Errorf("stage %s: %w", st.name, err)
		}
		telemetry.Info("pipeline.stage", map[string]any{
			"analysis_id": state.AnalysisID,
			"stage":       st.name,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		state = out.apply(state)
	}
	return state, nil
}
