package invoke

import (
	"context"

	"proposal-backend/internal/llm"
	"proposal-backend/internal/shared/telemetry"
)

// LogTracer emits one telemetry line per attempt lifecycle event.
type LogTracer struct{}

func (LogTracer) AttemptStart(ctx context.Context, model string, attempt int) {
	telemetry.Info("llm.attempt.start", map[string]any{
		"analysis_id": AnalysisIDFromContext(ctx),
		"model":       model,
		"attempt":     attempt,
	})
}

func (LogTracer) AttemptEnd(ctx context.Context, model string, attempt int, resp llm.Response) {
	fields := map[string]any{
		"analysis_id": AnalysisIDFromContext(ctx),
		"model":       model,
		"attempt":     attempt,
	}
	if resp.Usage != nil {
		fields["input_tokens"] = resp.Usage.InputTokens
		fields["output_tokens"] = resp.Usage.OutputTokens
	}
	telemetry.Info("llm.attempt.end", fields)
}

func (LogTracer) AttemptError(ctx context.Context, model string, attempt int, err error) {
	telemetry.Error("llm.attempt.error", map[string]any{
		"analysis_id": AnalysisIDFromContext(ctx),
		"model":       model,
		"attempt":     attempt,
		"error":       err.Error(),
	})
}

var _ Tracer = LogTracer{}
