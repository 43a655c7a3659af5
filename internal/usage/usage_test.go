package usage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/2389/parley/internal/llm"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		raw  llm.Usage
		want TokenUsage
	}{
		{
			name: "anthropic style with cache reads and writes",
			raw:  llm.Usage{InputTokens: 130, OutputTokens: 42, CacheReadTokens: 100, CacheWriteTokens: 20},
			want: TokenUsage{
				InputTotalTokens:      130,
				InputNoCacheTokens:    10,
				InputCacheReadTokens:  100,
				InputCacheWriteTokens: 20,
				OutputTotalTokens:     42,
				OutputTextTokens:      42,
				TotalTokens:           172,
			},
		},
		{
			name: "openai style with reasoning",
			raw:  llm.Usage{InputTokens: 50, OutputTokens: 7, CacheReadTokens: 30, ReasoningTokens: 2},
			want: TokenUsage{
				InputTotalTokens:      50,
				InputNoCacheTokens:    20,
				InputCacheReadTokens:  30,
				OutputTotalTokens:     7,
				OutputTextTokens:      5,
				OutputReasoningTokens: 2,
				TotalTokens:           57,
			},
		},
		{
			name: "inconsistent counters clamp at zero",
			raw:  llm.Usage{InputTokens: 5, CacheReadTokens: 10, OutputTokens: 1, ReasoningTokens: 3},
			want: TokenUsage{
				InputTotalTokens:      5,
				InputCacheReadTokens:  10,
				OutputTotalTokens:     1,
				OutputReasoningTokens: 3,
				TotalTokens:           6,
			},
		},
		{
			name: "zero",
			want: TokenUsage{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Convert(tt.raw))
		})
	}
}

func TestPricing_Cost(t *testing.T) {
	pricing := Pricing{
		"gpt-4.1":            {Input: 2.00, Output: 8.00, CacheRead: 0.50},
		"openrouter:gpt-4.1": {Input: 4.00, Output: 16.00},
	}

	u := TokenUsage{
		InputNoCacheTokens:   1_000_000,
		InputCacheReadTokens: 2_000_000,
		OutputTotalTokens:    500_000,
	}

	c := pricing.Cost("openai", "gpt-4.1", u)
	assert.True(t, decimal.NewFromInt(2).Equal(c.InputNoCache), c.InputNoCache.String())
	assert.True(t, decimal.NewFromInt(1).Equal(c.InputCacheRead), c.InputCacheRead.String())
	assert.True(t, decimal.NewFromInt(4).Equal(c.Output), c.Output.String())
	assert.True(t, decimal.NewFromInt(7).Equal(c.TotalCost), c.TotalCost.String())

	t.Run("provider-qualified key wins", func(t *testing.T) {
		c := pricing.Cost("openrouter", "gpt-4.1", TokenUsage{InputNoCacheTokens: 1_000_000})
		assert.True(t, decimal.NewFromInt(4).Equal(c.TotalCost))
	})

	t.Run("cache read falls back to input price", func(t *testing.T) {
		c := pricing.Cost("openrouter", "gpt-4.1", TokenUsage{InputCacheReadTokens: 1_000_000})
		assert.True(t, decimal.NewFromInt(4).Equal(c.InputCacheRead))
	})

	t.Run("unknown model is free", func(t *testing.T) {
		c := pricing.Cost("openai", "local-llama", u)
		assert.True(t, c.TotalCost.IsZero())
	})
}

func TestPricing_Record(t *testing.T) {
	u, c := DefaultPricing().Record("openai", "gpt-4.1", llm.Usage{InputTokens: 1000, OutputTokens: 100})
	assert.Equal(t, 1100, u.TotalTokens)
	// 1000 * 2/1M + 100 * 8/1M = 0.002 + 0.0008
	assert.Equal(t, "0.0028", c.TotalCost.String())
}

func TestPricing_Merge(t *testing.T) {
	base := Pricing{"a": {Input: 1}}
	merged := base.Merge(Pricing{"a": {Input: 2}, "b": {Input: 3}})
	assert.Equal(t, 2.0, merged["a"].Input)
	assert.Equal(t, 3.0, merged["b"].Input)
	assert.Equal(t, 1.0, base["a"].Input, "merge does not mutate the receiver")
}
