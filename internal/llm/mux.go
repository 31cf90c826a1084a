package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mux routes requests to a provider client based on the model name prefix.
// "gpt-*", "o1*", "o3*" and "chatgpt-*" go to OpenAI-family clients,
// "claude-*" to Anthropic-family clients.
type Mux struct {
	clients map[string]Client
}

// NewMux constructs a Mux. Keys are provider family names ("openai", "anthropic").
func NewMux(clients map[string]Client) *Mux {
	return &Mux{clients: clients}
}

// Complete dispatches to the client for the request's model family.
func (m *Mux) Complete(ctx context.Context, req Request) (Response, error) {
	family := ProviderFor(req.Model)
	client, ok := m.clients[family]
	if !ok || client == nil {
		return Response{}, &PermanentError{
			Provider:   family,
			StatusCode: 0,
			Message:    fmt.Sprintf("no client configured for model %q", req.Model),
		}
	}
	return client.Complete(ctx, req)
}

// ProviderFor maps a model name to its provider family.
func ProviderFor(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(name, "claude-"):
		return "anthropic"
	case strings.HasPrefix(name, "gpt-"),
		strings.HasPrefix(name, "chatgpt-"),
		strings.HasPrefix(name, "o1"),
		strings.HasPrefix(name, "o3"),
		strings.HasPrefix(name, "o4"):
		return "openai"
	default:
		return "openai"
	}
}

var _ Client = (*Mux)(nil)
