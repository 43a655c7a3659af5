// ABOUTME: Chooses the provider and model for a new session through fallback tiers
// ABOUTME: Explicit selection, then stored project configs, then environment credentials

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

// ErrNoModelConfigured indicates no tier produced a usable provider.
var ErrNoModelConfigured = errors.New("no model configured")

// ModelSelection binds a provider to a model id.
type ModelSelection struct {
	Provider llm.Provider `json:"provider"`
	ModelID  string       `json:"modelId"`
}

func (m ModelSelection) String() string {
	return string(m.Provider) + ":" + m.ModelID
}

// ParseSelection parses "provider:model_id". The model id may itself contain
// colons.
func ParseSelection(s string) (ModelSelection, error) {
	name, model, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(model) == "" {
		return ModelSelection{}, fmt.Errorf("invalid model %q: use provider:model_id", s)
	}
	p, err := llm.ParseProvider(name)
	if err != nil {
		return ModelSelection{}, err
	}
	return ModelSelection{Provider: p, ModelID: strings.TrimSpace(model)}, nil
}

// ConfigStore reads per-project provider credentials.
type ConfigStore interface {
	GetProjectLLMConfigs(ctx context.Context, projectID string) ([]*store.LLMConfig, error)
	// GetProjectLLMConfigByProvider returns store.ErrNotFound when absent.
	GetProjectLLMConfigByProvider(ctx context.Context, projectID, provider string) (*store.LLMConfig, error)
}

// Store is the persistence the agent needs.
type Store interface {
	ConfigStore
	UpsertMessage(ctx context.Context, msg *store.Message, meta store.MessageMeta) error
}

// Environment answers credential questions outside project storage.
type Environment interface {
	DefaultModel(p llm.Provider) string
	Credential(p llm.Provider) (llm.ClientConfig, bool)
	ConfiguredProviders() []llm.Provider
}

// Resolver picks a ModelSelection for a project.
type Resolver struct {
	store  ConfigStore
	env    Environment
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(st ConfigStore, env Environment, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, env: env, logger: logger.With("component", "resolver")}
}

// Resolve returns the first selection found among: the explicit selection,
// the project's first stored config with its provider's default model, and
// the first provider in table order with an environment credential.
func (r *Resolver) Resolve(ctx context.Context, projectID string, explicit *ModelSelection) (ModelSelection, error) {
	if explicit != nil {
		return *explicit, nil
	}

	configs, err := r.store.GetProjectLLMConfigs(ctx, projectID)
	if err != nil {
		return ModelSelection{}, fmt.Errorf("reading project llm configs: %w", err)
	}
	for _, cfg := range configs {
		p, err := llm.ParseProvider(cfg.Provider)
		if err != nil {
			r.logger.Debug("skipping stored config for unknown provider",
				"project_id", projectID, "provider", cfg.Provider)
			continue
		}
		return ModelSelection{Provider: p, ModelID: r.env.DefaultModel(p)}, nil
	}

	configured := make(map[llm.Provider]bool)
	for _, p := range r.env.ConfiguredProviders() {
		configured[p] = true
	}
	for _, p := range llm.Providers() {
		if configured[p] {
			return ModelSelection{Provider: p, ModelID: r.env.DefaultModel(p)}, nil
		}
	}

	return ModelSelection{}, ErrNoModelConfigured
}
