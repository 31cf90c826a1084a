package invoke

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proposal-backend/internal/llm"
)

type scriptedClient struct {
	mu      sync.Mutex
	calls   []string
	outcome func(call int, req llm.Request) (llm.Response, error)
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req.Model)
	call := len(c.calls)
	c.mu.Unlock()
	return c.outcome(call, req)
}

type captureHook struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (h *captureHook) RecordAttempt(ctx context.Context, attempt Attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, attempt)
}

func testOptions() Options {
	return Options{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Timeout:           time.Minute,
		RateLimitMinDelay: 5 * time.Second,
	}
}

func newTestInvoker(client llm.Client, opts Options, hook UsageHook) (*Invoker, *[]time.Duration) {
	inv := New(client, opts, hook, nil)
	var slept []time.Duration
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	inv.jitter = func() float64 { return 1.0 }
	return inv, &slept
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "ok", Model: req.Model, Usage: &llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
	}}
	hook := &captureHook{}
	inv, slept := newTestInvoker(client, testOptions(), hook)

	resp, err := inv.Call(context.Background(), llm.Request{Prompt: "p"}, []string{"gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(client.calls))
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", *slept)
	}
	if len(hook.attempts) != 1 || hook.attempts[0].Err != nil || hook.attempts[0].Usage == nil {
		t.Fatalf("expected one successful usage attempt, got %#v", hook.attempts)
	}
}

func TestCallRetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		if call <= 2 {
			return llm.Response{}, errors.New("upstream 500")
		}
		return llm.Response{Content: "ok", Usage: &llm.Usage{InputTokens: 1, OutputTokens: 1}}, nil
	}}
	hook := &captureHook{}
	inv, slept := newTestInvoker(client, testOptions(), hook)

	if _, err := inv.Call(context.Background(), llm.Request{Prompt: "p"}, []string{"gpt-4o-mini"}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(client.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(client.calls))
	}
	// With jitter pinned to 1.0, delays are base, 2*base.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("sleep %d: expected %s, got %s", i, d, (*slept)[i])
		}
	}
	// Two failed attempts metered, one success.
	if len(hook.attempts) != 3 {
		t.Fatalf("expected 3 metered attempts, got %d", len(hook.attempts))
	}
	if hook.attempts[0].Err == nil || hook.attempts[1].Err == nil || hook.attempts[2].Err != nil {
		t.Fatalf("unexpected attempt outcomes: %#v", hook.attempts)
	}
}

func TestCallFallsBackToNextModel(t *testing.T) {
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		if req.Model == "gpt-4o-mini" {
			return llm.Response{}, errors.New("connection reset")
		}
		return llm.Response{Content: "ok", Model: req.Model, Usage: &llm.Usage{}}, nil
	}}
	opts := testOptions()
	opts.MaxRetries = 1
	inv, _ := newTestInvoker(client, opts, nil)

	resp, err := inv.Call(context.Background(), llm.Request{Prompt: "p"}, []string{"gpt-4o-mini", "claude-3-5-haiku-latest"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Model != "claude-3-5-haiku-latest" {
		t.Fatalf("expected fallback model response, got %q", resp.Model)
	}
	wantCalls := []string{"gpt-4o-mini", "gpt-4o-mini", "claude-3-5-haiku-latest"}
	if len(client.calls) != len(wantCalls) {
		t.Fatalf("expected calls %v, got %v", wantCalls, client.calls)
	}
	for i, model := range wantCalls {
		if client.calls[i] != model {
			t.Fatalf("call %d: expected %q, got %q", i, model, client.calls[i])
		}
	}
}

func TestCallPermanentErrorReturnsImmediately(t *testing.T) {
	permanent := &llm.PermanentError{Provider: "openai", StatusCode: 400, Message: "bad request"}
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{}, permanent
	}}
	inv, slept := newTestInvoker(client, testOptions(), nil)

	_, err := inv.Call(context.Background(), llm.Request{Prompt: "p"}, []string{"gpt-4o-mini", "claude-3-5-haiku-latest"})
	var pe *llm.PermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(client.calls))
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff, got %v", *slept)
	}
}

func TestCallExhaustedAcrossAllModels(t *testing.T) {
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("upstream 503")
	}}
	opts := testOptions()
	opts.MaxRetries = 2
	inv, _ := newTestInvoker(client, opts, nil)

	_, err := inv.Call(context.Background(), llm.Request{Prompt: "p"}, []string{"gpt-4o-mini", "claude-3-5-haiku-latest"})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Models != 2 {
		t.Fatalf("expected 2 models, got %d", exhausted.Models)
	}
	if exhausted.Attempts != 6 {
		t.Fatalf("expected 6 attempts, got %d", exhausted.Attempts)
	}
	if exhausted.LastErr == nil {
		t.Fatalf("expected last error to be preserved")
	}
}

func TestBackoffDelayMonotonicAndCapped(t *testing.T) {
	inv, _ := newTestInvoker(&scriptedClient{}, testOptions(), nil)

	transient := errors.New("upstream 502")
	var prev time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		delay := inv.backoffDelay(attempt, transient)
		if delay < prev {
			t.Fatalf("attempt %d: delay %s shrank below %s", attempt, delay, prev)
		}
		if delay > inv.opts.MaxDelay {
			t.Fatalf("attempt %d: delay %s exceeds cap %s", attempt, delay, inv.opts.MaxDelay)
		}
		prev = delay
	}
}

func TestBackoffDelayRateLimitFloor(t *testing.T) {
	inv, _ := newTestInvoker(&scriptedClient{}, testOptions(), nil)

	throttled := &llm.RateLimitError{Provider: "openai", Message: "slow down"}
	if delay := inv.backoffDelay(0, throttled); delay < inv.opts.RateLimitMinDelay {
		t.Fatalf("expected floor %s, got %s", inv.opts.RateLimitMinDelay, delay)
	}

	hinted := &llm.RateLimitError{Provider: "openai", RetryAfter: 12 * time.Second, Message: "slow down"}
	if delay := inv.backoffDelay(0, hinted); delay != 12*time.Second {
		t.Fatalf("expected provider hint 12s, got %s", delay)
	}
}

func TestCallStopsWhenContextCanceled(t *testing.T) {
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("upstream 500")
	}}
	inv, _ := newTestInvoker(client, testOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := inv.Call(ctx, llm.Request{Prompt: "p"}, []string{"gpt-4o-mini"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected no attempts after cancel, got %d", len(client.calls))
	}
}

func TestCallRequiresCandidates(t *testing.T) {
	inv, _ := newTestInvoker(&scriptedClient{}, testOptions(), nil)
	if _, err := inv.Call(context.Background(), llm.Request{Prompt: "p"}, nil); err == nil {
		t.Fatalf("expected error for empty candidate list")
	}
}

func TestRecordCarriesIdentityFromContext(t *testing.T) {
	client := &scriptedClient{outcome: func(call int, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "ok", Usage: &llm.Usage{InputTokens: 2, OutputTokens: 3}}, nil
	}}
	hook := &captureHook{}
	inv, _ := newTestInvoker(client, testOptions(), hook)

	ctx := WithAnalysisID(context.Background(), "analysis-1")
	ctx = WithUserID(ctx, "user-1")
	if _, err := inv.Call(ctx, llm.Request{Prompt: "p"}, []string{"gpt-4o-mini"}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(hook.attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(hook.attempts))
	}
	got := hook.attempts[0]
	if got.AnalysisID != "analysis-1" || got.UserID != "user-1" {
		t.Fatalf("expected identity from context, got %#v", got)
	}
}
