// ABOUTME: Tests for per-project LLM config storage
// ABOUTME: Covers insertion order, upsert replacement, sealing, and not-found handling

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestProjectLLMConfigs_InsertionOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{ProjectID: "p1", Provider: "openai", APIKey: "sk-o"}))
	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{ProjectID: "p1", Provider: "anthropic", APIKey: "sk-a"}))
	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{ProjectID: "p2", Provider: "openrouter", APIKey: "sk-r"}))

	// Replacing an existing provider keeps its position.
	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{
		ProjectID: "p1", Provider: "openai", APIKey: "sk-o2", BaseURL: "https://proxy.local/v1",
	}))

	configs, err := store.GetProjectLLMConfigs(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "openai", configs[0].Provider)
	assert.Equal(t, "sk-o2", configs[0].APIKey)
	assert.Equal(t, "https://proxy.local/v1", configs[0].BaseURL)
	assert.Equal(t, "anthropic", configs[1].Provider)
	assert.Empty(t, configs[1].BaseURL)

	empty, err := store.GetProjectLLMConfigs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProjectLLMConfigByProvider(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{ProjectID: "p1", Provider: "anthropic", APIKey: "sk-a"}))

	cfg, err := store.GetProjectLLMConfigByProvider(ctx, "p1", "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-a", cfg.APIKey)
	assert.NotEmpty(t, cfg.ID)

	_, err = store.GetProjectLLMConfigByProvider(ctx, "p1", "openai")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectLLMConfig(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{ProjectID: "p1", Provider: "openai", APIKey: "k"}))
	require.NoError(t, store.DeleteProjectLLMConfig(ctx, "p1", "openai"))
	assert.ErrorIs(t, store.DeleteProjectLLMConfig(ctx, "p1", "openai"), ErrNotFound)
}

func TestProjectLLMConfig_SealedAtRest(t *testing.T) {
	sealer, err := NewSealer("database-secret")
	require.NoError(t, err)
	store := setupTestStore(t, WithSealer(sealer))
	ctx := context.Background()

	require.NoError(t, store.UpsertProjectLLMConfig(ctx, &LLMConfig{ProjectID: "p1", Provider: "openai", APIKey: "sk-plain"}))

	var raw string
	err = store.db.QueryRowContext(ctx,
		`SELECT api_key FROM project_llm_configs WHERE project_id = ?`, "p1").Scan(&raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "sk-plain")
	assert.Contains(t, raw, sealedPrefix)

	cfg, err := store.GetProjectLLMConfigByProvider(ctx, "p1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", cfg.APIKey)
}

func TestProjectLLMConfig_SealedWithoutSecret(t *testing.T) {
	sealer, err := NewSealer("database-secret")
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	sealed, err := NewSQLiteStore(dbPath, WithSealer(sealer))
	require.NoError(t, err)
	require.NoError(t, sealed.UpsertProjectLLMConfig(context.Background(),
		&LLMConfig{ProjectID: "p1", Provider: "openai", APIKey: "sk-plain"}))
	sealed.Close()

	plain, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer plain.Close()

	_, err = plain.GetProjectLLMConfigs(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrNoSealer)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}

func TestUpsertProjectLLMConfig_RequiresKeys(t *testing.T) {
	store := setupTestStore(t)
	err := store.UpsertProjectLLMConfig(context.Background(), &LLMConfig{Provider: "openai"})
	assert.Error(t, err)
}
