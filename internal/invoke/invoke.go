package invoke

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"proposal-backend/internal/llm"
	"proposal-backend/internal/shared/metrics"
	"proposal-backend/internal/shared/telemetry"
)

// Options controls retry, fallback and timeout behavior for one logical call.
type Options struct {
	MaxRetries        int           // extra attempts per model after the first
	BaseDelay         time.Duration // first backoff step
	MaxDelay          time.Duration // backoff ceiling
	Timeout           time.Duration // per-attempt deadline
	RateLimitMinDelay time.Duration // floor applied to throttled retries
}

// DefaultOptions returns the production retry budget.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Timeout:           60 * time.Second,
		RateLimitMinDelay: 5 * time.Second,
	}
}

// Attempt describes the outcome of a single call attempt, success or failure.
type Attempt struct {
	AnalysisID string
	UserID     string
	Model      string
	Usage      *llm.Usage
	Err        error
	Duration   time.Duration
}

// UsageHook receives every call attempt. Implementations must not fail the
// call path; metering is best-effort.
type UsageHook interface {
	RecordAttempt(ctx context.Context, attempt Attempt)
}

// Tracer optionally observes attempt lifecycles. A nil Tracer is valid and
// changes nothing.
type Tracer interface {
	AttemptStart(ctx context.Context, model string, attempt int)
	AttemptEnd(ctx context.Context, model string, attempt int, resp llm.Response)
	AttemptError(ctx context.Context, model string, attempt int, err error)
}

// ExhaustedError reports that every candidate model and retry was consumed.
type ExhaustedError struct {
	Models   int
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models exhausted after %d attempts across %d models: %v", e.Attempts, e.Models, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Invoker wraps a provider client with retry, multi-model fallback and
// per-attempt timeouts.
type Invoker struct {
	client llm.Client
	opts   Options
	hook   UsageHook
	tracer Tracer

	// Overridable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New constructs an Invoker. hook and tracer may be nil.
func New(client llm.Client, opts Options, hook UsageHook, tracer Tracer) *Invoker {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RateLimitMinDelay <= 0 {
		opts.RateLimitMinDelay = 5 * time.Second
	}
	return &Invoker{
		client: client,
		opts:   opts,
		hook:   hook,
		tracer: tracer,
		sleep:  sleepCtx,
		// Uniform jitter in [0.5, 1.0) to avoid synchronized retry storms.
		jitter: func() float64 { return 0.5 + rand.Float64()*0.5 },
	}
}

// Call tries each candidate model in order, retrying transient failures with
// exponential backoff. The request's Model field is overwritten per candidate.
// Each attempt runs under its own deadline; when the deadline wins the race the
// underlying HTTP call is canceled with it, not left running.
func (inv *Invoker) Call(ctx context.Context, req llm.Request, candidates []string) (llm.Response, error) {
	if len(candidates) == 0 {
		return llm.Response{}, fmt.Errorf("no candidate models")
	}

	var lastErr error
	attempts := 0

	for _, model := range candidates {
		for attempt := 0; attempt <= inv.opts.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return llm.Response{}, err
			}
			attempts++

			resp, err := inv.attempt(ctx, req, model, attempt)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			if llm.IsPermanent(err) {
				// Malformed request: no model or retry will fix it.
				return llm.Response{}, err
			}
			if ctx.Err() != nil {
				return llm.Response{}, ctx.Err()
			}

			if attempt < inv.opts.MaxRetries {
				delay := inv.backoffDelay(attempt, err)
				telemetry.Warn("llm.retry", map[string]any{
					"model":    model,
					"attempt":  attempt + 1,
					"delay_ms": delay.Milliseconds(),
					"error":    err.Error(),
				})
				if sleepErr := inv.sleep(ctx, delay); sleepErr != nil {
					return llm.Response{}, sleepErr
				}
			}
		}
		// Fall through to the next candidate with no extra delay.
	}

	return llm.Response{}, &ExhaustedError{
		Models:   len(candidates),
		Attempts: attempts,
		LastErr:  lastErr,
	}
}

func (inv *Invoker) attempt(ctx context.Context, req llm.Request, model string, attempt int) (llm.Response, error) {
	req.Model = model

	if inv.tracer != nil {
		inv.tracer.AttemptStart(ctx, model, attempt)
	}
	metrics.IncLLMAttempt()

	attemptCtx, cancel := context.WithTimeout(ctx, inv.opts.Timeout)
	start := time.Now()
	resp, err := inv.client.Complete(attemptCtx, req)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		metrics.IncLLMAttemptFailed()
		if inv.tracer != nil {
			inv.tracer.AttemptError(ctx, model, attempt, err)
		}
		inv.record(ctx, Attempt{Model: model, Err: err, Duration: elapsed})
		return llm.Response{}, err
	}

	if inv.tracer != nil {
		inv.tracer.AttemptEnd(ctx, model, attempt, resp)
	}
	if resp.Usage == nil {
		telemetry.Warn("llm.usage_missing", map[string]any{"model": model})
	} else {
		inv.record(ctx, Attempt{Model: model, Usage: resp.Usage, Duration: elapsed})
	}
	return resp, nil
}

func (inv *Invoker) record(ctx context.Context, attempt Attempt) {
	if inv.hook == nil {
		return
	}
	attempt.AnalysisID = AnalysisIDFromContext(ctx)
	attempt.UserID = UserIDFromContext(ctx)
	inv.hook.RecordAttempt(ctx, attempt)
}

// backoffDelay computes min(base*2^attempt, max) scaled by jitter. Throttled
// retries are floored at RateLimitMinDelay, or the provider's retry-after hint
// when that is larger.
func (inv *Invoker) backoffDelay(attempt int, err error) time.Duration {
	delay := inv.opts.BaseDelay << uint(attempt)
	if delay > inv.opts.MaxDelay || delay <= 0 {
		delay = inv.opts.MaxDelay
	}
	delay = time.Duration(float64(delay) * inv.jitter())

	if llm.IsRateLimit(err) {
		floor := inv.opts.RateLimitMinDelay
		if hint, ok := llm.RetryAfterHint(err); ok && hint > floor {
			floor = hint
		}
		if delay < floor {
			delay = floor
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
