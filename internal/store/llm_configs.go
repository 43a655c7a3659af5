// ABOUTME: Per-project LLM provider credentials stored in SQLite
// ABOUTME: API keys are sealed at rest when a database secret is configured

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// UpsertProjectLLMConfig creates or replaces a project's config for a provider.
// Replacing keeps the original row so insertion order is stable.
func (s *SQLiteStore) UpsertProjectLLMConfig(ctx context.Context, cfg *LLMConfig) error {
	if cfg.ProjectID == "" || cfg.Provider == "" {
		return errors.New("project id and provider are required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	apiKey, err := s.sealer.Seal(cfg.APIKey)
	if err != nil {
		return fmt.Errorf("sealing api key: %w", err)
	}

	query := `
		INSERT INTO project_llm_configs (id, project_id, provider, api_key, base_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, provider) DO UPDATE SET
			api_key = excluded.api_key,
			base_url = excluded.base_url,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.ProjectID,
		cfg.Provider,
		apiKey,
		nullString(cfg.BaseURL),
		cfg.CreatedAt.Format(time.RFC3339),
		cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting llm config: %w", err)
	}

	s.logger.Debug("upserted llm config", "project_id", cfg.ProjectID, "provider", cfg.Provider)
	return nil
}

// GetProjectLLMConfigs returns all configs for a project in insertion order.
func (s *SQLiteStore) GetProjectLLMConfigs(ctx context.Context, projectID string) ([]*LLMConfig, error) {
	query := `
		SELECT id, project_id, provider, api_key, base_url, created_at, updated_at
		FROM project_llm_configs
		WHERE project_id = ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying llm configs: %w", err)
	}
	defer rows.Close()

	var configs []*LLMConfig
	for rows.Next() {
		cfg, err := s.scanLLMConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning llm config row: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating llm config rows: %w", err)
	}

	return configs, nil
}

// GetProjectLLMConfigByProvider returns a project's config for one provider.
// Returns ErrNotFound if none is stored.
func (s *SQLiteStore) GetProjectLLMConfigByProvider(ctx context.Context, projectID, provider string) (*LLMConfig, error) {
	query := `
		SELECT id, project_id, provider, api_key, base_url, created_at, updated_at
		FROM project_llm_configs
		WHERE project_id = ? AND provider = ?
	`

	cfg, err := s.scanLLMConfig(s.db.QueryRowContext(ctx, query, projectID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying llm config: %w", err)
	}
	return cfg, nil
}

// DeleteProjectLLMConfig removes a project's config for a provider.
// Returns ErrNotFound if none is stored.
func (s *SQLiteStore) DeleteProjectLLMConfig(ctx context.Context, projectID, provider string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM project_llm_configs WHERE project_id = ? AND provider = ?`,
		projectID, provider,
	)
	if err != nil {
		return fmt.Errorf("deleting llm config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted llm config", "project_id", projectID, "provider", provider)
	return nil
}

func (s *SQLiteStore) scanLLMConfig(row rowScanner) (*LLMConfig, error) {
	var cfg LLMConfig
	var baseURL sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&cfg.ID,
		&cfg.ProjectID,
		&cfg.Provider,
		&cfg.APIKey,
		&baseURL,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	apiKey, err := s.sealer.Open(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("opening api key for %s: %w", cfg.Provider, err)
	}
	cfg.APIKey = apiKey
	cfg.BaseURL = baseURL.String

	if parsed, err := time.Parse(time.RFC3339, createdAt); err != nil {
		slog.Warn("failed to parse llm config created_at", "id", cfg.ID, "error", err)
	} else {
		cfg.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339, updatedAt); err != nil {
		slog.Warn("failed to parse llm config updated_at", "id", cfg.ID, "error", err)
	} else {
		cfg.UpdatedAt = parsed
	}

	return &cfg, nil
}
