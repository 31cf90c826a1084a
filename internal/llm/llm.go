package llm

import "context"

// Client abstracts a generative-language provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request captures one prompt sent to a model.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Usage reports token consumption for one call. Providers may omit it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the completion text plus optional usage metadata.
type Response struct {
	Content string
	Model   string
	Usage   *Usage
}
