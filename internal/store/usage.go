// ABOUTME: SQLite implementation for per-message token usage and cost
// ABOUTME: Costs are stored as decimal strings and summed in Go to keep precision

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/2389/parley/internal/usage"
)

// insertUsage records usage for msg within an UpsertMessage transaction.
// A regenerated message replaces its previous usage row.
func insertUsage(ctx context.Context, tx *sql.Tx, msg *Message, provider, modelID string, meta MessageMeta) error {
	u := *meta.Usage
	var c usage.TokenCost
	if meta.Cost != nil {
		c = *meta.Cost
	}

	query := `
		INSERT INTO message_usage (
			message_id, conversation_id, llm_provider, llm_model_id,
			input_total_tokens, input_no_cache_tokens, input_cache_read_tokens, input_cache_write_tokens,
			output_total_tokens, output_text_tokens, output_reasoning_tokens, total_tokens,
			cost_input_no_cache, cost_input_cache_read, cost_input_cache_write, cost_output, cost_total,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			llm_provider = excluded.llm_provider,
			llm_model_id = excluded.llm_model_id,
			input_total_tokens = excluded.input_total_tokens,
			input_no_cache_tokens = excluded.input_no_cache_tokens,
			input_cache_read_tokens = excluded.input_cache_read_tokens,
			input_cache_write_tokens = excluded.input_cache_write_tokens,
			output_total_tokens = excluded.output_total_tokens,
			output_text_tokens = excluded.output_text_tokens,
			output_reasoning_tokens = excluded.output_reasoning_tokens,
			total_tokens = excluded.total_tokens,
			cost_input_no_cache = excluded.cost_input_no_cache,
			cost_input_cache_read = excluded.cost_input_cache_read,
			cost_input_cache_write = excluded.cost_input_cache_write,
			cost_output = excluded.cost_output,
			cost_total = excluded.cost_total
	`

	_, err := tx.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		nullString(provider),
		nullString(modelID),
		u.InputTotalTokens,
		u.InputNoCacheTokens,
		u.InputCacheReadTokens,
		u.InputCacheWriteTokens,
		u.OutputTotalTokens,
		u.OutputTextTokens,
		u.OutputReasoningTokens,
		u.TotalTokens,
		c.InputNoCache.String(),
		c.InputCacheRead.String(),
		c.InputCacheWrite.String(),
		c.Output.String(),
		c.TotalCost.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}
	return nil
}

const usageColumns = `
	message_id, conversation_id, llm_provider, llm_model_id,
	input_total_tokens, input_no_cache_tokens, input_cache_read_tokens, input_cache_write_tokens,
	output_total_tokens, output_text_tokens, output_reasoning_tokens, total_tokens,
	cost_input_no_cache, cost_input_cache_read, cost_input_cache_write, cost_output, cost_total,
	created_at
`

// GetConversationUsage retrieves all usage records for a conversation.
func (s *SQLiteStore) GetConversationUsage(ctx context.Context, conversationID string) ([]*MessageUsage, error) {
	query := `SELECT ` + usageColumns + `
		FROM message_usage
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying conversation usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var usages []*MessageUsage
	for rows.Next() {
		mu, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		usages = append(usages, mu)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return usages, nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `SELECT ` + usageColumns + `
		FROM message_usage
		WHERE 1=1
	`
	args := []any{}

	if filter.ConversationID != nil {
		query += " AND conversation_id = ?"
		args = append(args, *filter.ConversationID)
	}
	if filter.LLMProvider != nil {
		query += " AND llm_provider = ?"
		args = append(args, *filter.LLMProvider)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &UsageStats{TotalCost: decimal.Zero}
	for rows.Next() {
		mu, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		stats.add(mu)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return stats, nil
}

func (st *UsageStats) add(mu *MessageUsage) {
	st.MessageCount++
	st.InputTotalTokens += int64(mu.Usage.InputTotalTokens)
	st.InputCacheReadTokens += int64(mu.Usage.InputCacheReadTokens)
	st.InputCacheWriteTokens += int64(mu.Usage.InputCacheWriteTokens)
	st.OutputTotalTokens += int64(mu.Usage.OutputTotalTokens)
	st.OutputReasoningTokens += int64(mu.Usage.OutputReasoningTokens)
	st.TotalTokens += int64(mu.Usage.TotalTokens)
	st.TotalCost = st.TotalCost.Add(mu.Cost.TotalCost)
}

// scanUsage scans a single usage row into a MessageUsage struct.
func scanUsage(rows *sql.Rows) (*MessageUsage, error) {
	var mu MessageUsage
	var provider, modelID sql.NullString
	var costNoCache, costRead, costWrite, costOutput, costTotal string
	var createdAtStr string

	err := rows.Scan(
		&mu.MessageID,
		&mu.ConversationID,
		&provider,
		&modelID,
		&mu.Usage.InputTotalTokens,
		&mu.Usage.InputNoCacheTokens,
		&mu.Usage.InputCacheReadTokens,
		&mu.Usage.InputCacheWriteTokens,
		&mu.Usage.OutputTotalTokens,
		&mu.Usage.OutputTextTokens,
		&mu.Usage.OutputReasoningTokens,
		&mu.Usage.TotalTokens,
		&costNoCache,
		&costRead,
		&costWrite,
		&costOutput,
		&costTotal,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning usage row: %w", err)
	}

	mu.LLMProvider = provider.String
	mu.LLMModelID = modelID.String

	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{costNoCache, &mu.Cost.InputNoCache},
		{costRead, &mu.Cost.InputCacheRead},
		{costWrite, &mu.Cost.InputCacheWrite},
		{costOutput, &mu.Cost.Output},
		{costTotal, &mu.Cost.TotalCost},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing cost %q: %w", f.raw, err)
		}
		*f.dst = d
	}

	mu.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &mu, nil
}
