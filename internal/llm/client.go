// ABOUTME: Client interface implemented by every provider and the client config value
// ABOUTME: ClientConfig redacts its API key whenever it is logged

package llm

import (
	"context"
	"log/slog"
)

// Client is the interface for LLM providers.
type Client interface {
	// Chat sends a request and waits for the complete response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// ChatStream sends a request and delivers text chunks to callback as
	// they arrive, returning the assembled response at the end.
	ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) (*ChatResponse, error)
}

// ClientConfig holds the credentials used to construct a provider client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// LogValue keeps the API key out of logs.
func (c ClientConfig) LogValue() slog.Value {
	key := ""
	if c.APIKey != "" {
		key = "[redacted]"
	}
	return slog.GroupValue(
		slog.String("api_key", key),
		slog.String("base_url", c.BaseURL),
	)
}

// String keeps the API key out of fmt output.
func (c ClientConfig) String() string {
	if c.BaseURL == "" {
		return "ClientConfig{api_key=[redacted]}"
	}
	return "ClientConfig{api_key=[redacted], base_url=" + c.BaseURL + "}"
}
