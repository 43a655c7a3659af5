// ABOUTME: Closed set of supported LLM providers and their per-provider behavior
// ABOUTME: Default model, credential env vars, cache-hint support, and client construction

package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnknownProvider is returned for provider names outside the supported set.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider names an LLM vendor.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
)

type providerSpec struct {
	defaultModel   string
	defaultBaseURL string
	credentialEnv  string
	baseURLEnv     string
	cacheHints     bool
	newClient      func(cfg ClientConfig, logger *slog.Logger) Client
}

// providerOrder is the stable order used when scanning providers.
var providerOrder = []Provider{ProviderAnthropic, ProviderOpenAI, ProviderOpenRouter}

// providerTable is filled in init because the client constructors read it
// back through DefaultBaseURL.
var providerTable map[Provider]providerSpec

func init() {
	providerTable = map[Provider]providerSpec{
		ProviderAnthropic: {
			defaultModel:   "claude-sonnet-4-5",
			defaultBaseURL: "https://api.anthropic.com",
			credentialEnv:  "ANTHROPIC_API_KEY",
			baseURLEnv:     "ANTHROPIC_BASE_URL",
			cacheHints:     true,
			newClient: func(cfg ClientConfig, logger *slog.Logger) Client {
				return NewAnthropicClient(cfg, logger)
			},
		},
		ProviderOpenAI: {
			defaultModel:   "gpt-4.1",
			defaultBaseURL: "https://api.openai.com/v1",
			credentialEnv:  "OPENAI_API_KEY",
			baseURLEnv:     "OPENAI_BASE_URL",
			newClient: func(cfg ClientConfig, logger *slog.Logger) Client {
				return NewOpenAIClient(ProviderOpenAI, cfg, logger)
			},
		},
		ProviderOpenRouter: {
			defaultModel:   "anthropic/claude-sonnet-4.5",
			defaultBaseURL: "https://openrouter.ai/api/v1",
			credentialEnv:  "OPENROUTER_API_KEY",
			baseURLEnv:     "OPENROUTER_BASE_URL",
			newClient: func(cfg ClientConfig, logger *slog.Logger) Client {
				return NewOpenAIClient(ProviderOpenRouter, cfg, logger)
			},
		},
	}
}

// Providers returns every supported provider in stable order.
func Providers() []Provider {
	out := make([]Provider, len(providerOrder))
	copy(out, providerOrder)
	return out
}

// ParseProvider converts a case-insensitive name to a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	_, ok := providerTable[p]
	return ok
}

// DefaultModel returns the built-in default model id for p.
func (p Provider) DefaultModel() string {
	return providerTable[p].defaultModel
}

// DefaultBaseURL returns the vendor's public API endpoint.
func (p Provider) DefaultBaseURL() string {
	return providerTable[p].defaultBaseURL
}

// CredentialEnv returns the environment variable holding p's API key.
func (p Provider) CredentialEnv() string {
	return providerTable[p].credentialEnv
}

// BaseURLEnv returns the environment variable overriding p's base URL.
func (p Provider) BaseURLEnv() string {
	return providerTable[p].baseURLEnv
}

// SupportsCacheHints reports whether p honors per-message cache annotations.
func (p Provider) SupportsCacheHints() bool {
	return providerTable[p].cacheHints
}

// NewClient constructs the client for p.
func NewClient(p Provider, cfg ClientConfig, logger *slog.Logger) (Client, error) {
	spec, ok := providerTable[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, string(p))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return spec.newClient(cfg, logger), nil
}
