package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

func TestResolver_Tiers(t *testing.T) {
	ctx := context.Background()
	envWithAll := fakeEnv{creds: map[llm.Provider]llm.ClientConfig{
		llm.ProviderOpenRouter: {APIKey: "or"},
		llm.ProviderOpenAI:     {APIKey: "oa"},
	}}

	t.Run("explicit selection is used verbatim", func(t *testing.T) {
		st := store.NewMockStore()
		seedOpenAIConfig(t, st)
		r := NewResolver(st, envWithAll, nil)

		explicit := &ModelSelection{Provider: llm.ProviderAnthropic, ModelID: "claude-opus-4-1"}
		sel, err := r.Resolve(ctx, "p1", explicit)
		require.NoError(t, err)
		assert.Equal(t, *explicit, sel)
	})

	t.Run("first stored config wins in insertion order", func(t *testing.T) {
		st := store.NewMockStore()
		require.NoError(t, st.UpsertProjectLLMConfig(ctx, &store.LLMConfig{ProjectID: "p1", Provider: "mistral", APIKey: "x"}))
		require.NoError(t, st.UpsertProjectLLMConfig(ctx, &store.LLMConfig{ProjectID: "p1", Provider: "openrouter", APIKey: "y"}))
		require.NoError(t, st.UpsertProjectLLMConfig(ctx, &store.LLMConfig{ProjectID: "p1", Provider: "anthropic", APIKey: "z"}))

		env := fakeEnv{models: map[llm.Provider]string{llm.ProviderOpenRouter: "custom/model"}}
		sel, err := NewResolver(st, env, nil).Resolve(ctx, "p1", nil)
		require.NoError(t, err)
		assert.Equal(t, ModelSelection{Provider: llm.ProviderOpenRouter, ModelID: "custom/model"}, sel)
	})

	t.Run("stored config beats an environment-only provider", func(t *testing.T) {
		st := store.NewMockStore()
		require.NoError(t, st.UpsertProjectLLMConfig(ctx, &store.LLMConfig{ProjectID: "p1", Provider: "anthropic", APIKey: "z"}))

		envOpenAI := fakeEnv{creds: map[llm.Provider]llm.ClientConfig{llm.ProviderOpenAI: {APIKey: "oa"}}}
		sel, err := NewResolver(st, envOpenAI, nil).Resolve(ctx, "p1", nil)
		require.NoError(t, err)
		assert.Equal(t, llm.ProviderAnthropic, sel.Provider)
		assert.Equal(t, llm.ProviderAnthropic.DefaultModel(), sel.ModelID)
	})

	t.Run("environment in provider table order", func(t *testing.T) {
		sel, err := NewResolver(store.NewMockStore(), envWithAll, nil).Resolve(ctx, "p1", nil)
		require.NoError(t, err)
		assert.Equal(t, llm.ProviderOpenAI, sel.Provider, "openai precedes openrouter in the table")
		assert.Equal(t, llm.ProviderOpenAI.DefaultModel(), sel.ModelID)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := NewResolver(store.NewMockStore(), fakeEnv{}, nil).Resolve(ctx, "p1", nil)
		assert.ErrorIs(t, err, ErrNoModelConfigured)
	})

	t.Run("storage errors propagate", func(t *testing.T) {
		st := store.NewMockStore()
		boom := errors.New("disk on fire")
		st.SetConfigError(boom)

		_, err := NewResolver(st, envWithAll, nil).Resolve(ctx, "p1", nil)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNoModelConfigured)
	})
}

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()
	env := fakeEnv{creds: map[llm.Provider]llm.ClientConfig{
		llm.ProviderOpenAI: {APIKey: "sk-env", BaseURL: "https://env.proxy/v1"},
	}}
	sel := ModelSelection{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}

	t.Run("stored config wins and is not blended with env", func(t *testing.T) {
		st := store.NewMockStore()
		seedOpenAIConfig(t, st)

		cfg, err := NewConfigLoader(st, env).Load(ctx, "p1", sel)
		require.NoError(t, err)
		assert.Equal(t, llm.ClientConfig{APIKey: "sk-stored"}, cfg)
	})

	t.Run("environment fallback", func(t *testing.T) {
		cfg, err := NewConfigLoader(store.NewMockStore(), env).Load(ctx, "p1", sel)
		require.NoError(t, err)
		assert.Equal(t, "sk-env", cfg.APIKey)
		assert.Equal(t, "https://env.proxy/v1", cfg.BaseURL)
	})

	t.Run("nothing available", func(t *testing.T) {
		_, err := NewConfigLoader(store.NewMockStore(), fakeEnv{}).Load(ctx, "p1", sel)
		assert.ErrorIs(t, err, ErrNoModelConfigured)
	})

	t.Run("storage errors propagate", func(t *testing.T) {
		st := store.NewMockStore()
		boom := errors.New("locked")
		st.SetConfigError(boom)

		_, err := NewConfigLoader(st, env).Load(ctx, "p1", sel)
		assert.ErrorIs(t, err, boom)
	})
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection("OpenAI:gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, ModelSelection{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}, sel)

	sel, err = ParseSelection("openrouter:meta-llama/llama-3:free")
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-3:free", sel.ModelID)

	_, err = ParseSelection("gpt-4.1")
	assert.Error(t, err)

	_, err = ParseSelection("openai:")
	assert.Error(t, err)

	_, err = ParseSelection("mistral:large")
	assert.ErrorIs(t, err, llm.ErrUnknownProvider)
}
