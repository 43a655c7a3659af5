// ABOUTME: Resolves client credentials for a model selection
// ABOUTME: Stored project configs win over environment keys

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

// ConfigLoader produces the client credentials for a selection. Stored
// project configs win over the environment; the two are never mixed.
type ConfigLoader struct {
	store ConfigStore
	env   Environment
}

// NewConfigLoader creates a ConfigLoader.
func NewConfigLoader(st ConfigStore, env Environment) *ConfigLoader {
	return &ConfigLoader{store: st, env: env}
}

// Load returns the credentials for sel within projectID.
func (l *ConfigLoader) Load(ctx context.Context, projectID string, sel ModelSelection) (llm.ClientConfig, error) {
	stored, err := l.store.GetProjectLLMConfigByProvider(ctx, projectID, string(sel.Provider))
	switch {
	case err == nil:
		return llm.ClientConfig{APIKey: stored.APIKey, BaseURL: stored.BaseURL}, nil
	case !errors.Is(err, store.ErrNotFound):
		return llm.ClientConfig{}, fmt.Errorf("reading project llm config: %w", err)
	}

	if cred, ok := l.env.Credential(sel.Provider); ok {
		return cred, nil
	}
	return llm.ClientConfig{}, ErrNoModelConfigured
}
