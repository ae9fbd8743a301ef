package llm

import "context"

// Client is the interface that all chat model providers must implement.
type Client interface {
	// Chat sends a chat completion request with the given tool
	// definitions bound and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
