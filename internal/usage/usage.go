// ABOUTME: Converts raw provider token counters into normalized usage and cost records
// ABOUTME: Cost math uses decimal amounts over a per-million-token pricing table

package usage

import (
	"github.com/shopspring/decimal"

	"github.com/2389/parley/internal/llm"
)

var million = decimal.NewFromInt(1_000_000)

// TokenUsage is the normalized token accounting for one generation.
type TokenUsage struct {
	InputTotalTokens      int `json:"inputTotalTokens"`
	InputNoCacheTokens    int `json:"inputNoCacheTokens"`
	InputCacheReadTokens  int `json:"inputCacheReadTokens"`
	InputCacheWriteTokens int `json:"inputCacheWriteTokens"`
	OutputTotalTokens     int `json:"outputTotalTokens"`
	OutputTextTokens      int `json:"outputTextTokens"`
	OutputReasoningTokens int `json:"outputReasoningTokens"`
	TotalTokens           int `json:"totalTokens"`
}

// TokenCost is the USD cost breakdown for one generation.
type TokenCost struct {
	InputNoCache    decimal.Decimal `json:"inputNoCache"`
	InputCacheRead  decimal.Decimal `json:"inputCacheRead"`
	InputCacheWrite decimal.Decimal `json:"inputCacheWrite"`
	Output          decimal.Decimal `json:"output"`
	TotalCost       decimal.Decimal `json:"totalCost"`
}

// Convert normalizes raw counters. Derived fields never go negative even if
// a provider reports inconsistent totals.
func Convert(raw llm.Usage) TokenUsage {
	u := TokenUsage{
		InputTotalTokens:      raw.InputTokens,
		InputCacheReadTokens:  raw.CacheReadTokens,
		InputCacheWriteTokens: raw.CacheWriteTokens,
		InputNoCacheTokens:    max(0, raw.InputTokens-raw.CacheReadTokens-raw.CacheWriteTokens),
		OutputTotalTokens:     raw.OutputTokens,
		OutputReasoningTokens: raw.ReasoningTokens,
		OutputTextTokens:      max(0, raw.OutputTokens-raw.ReasoningTokens),
	}
	u.TotalTokens = u.InputTotalTokens + u.OutputTotalTokens
	return u
}

// Price holds USD per million tokens. Zero cache prices fall back to Input.
type Price struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// Pricing maps "provider:model" or bare model ids to prices.
type Pricing map[string]Price

// DefaultPricing covers the providers' default models.
func DefaultPricing() Pricing {
	sonnet := Price{Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75}
	return Pricing{
		"claude-sonnet-4-5":                      sonnet,
		"claude-haiku-4-5":                       {Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25},
		"claude-opus-4-1":                        {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"gpt-4.1":                                {Input: 2.00, Output: 8.00, CacheRead: 0.50},
		"gpt-4.1-mini":                           {Input: 0.40, Output: 1.60, CacheRead: 0.10},
		"gpt-4o":                                 {Input: 2.50, Output: 10.00, CacheRead: 1.25},
		"openrouter:anthropic/claude-sonnet-4.5": sonnet,
	}
}

// Merge returns a copy of p with entries from o added or replaced.
func (p Pricing) Merge(o Pricing) Pricing {
	out := make(Pricing, len(p)+len(o))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Lookup finds the price for a model, preferring a provider-qualified key.
func (p Pricing) Lookup(provider, model string) (Price, bool) {
	if price, ok := p[provider+":"+model]; ok {
		return price, true
	}
	price, ok := p[model]
	return price, ok
}

// Cost prices u for the given model. Unknown models cost zero.
func (p Pricing) Cost(provider, model string, u TokenUsage) TokenCost {
	price, ok := p.Lookup(provider, model)
	if !ok {
		return TokenCost{}
	}
	cacheRead := price.CacheRead
	if cacheRead == 0 {
		cacheRead = price.Input
	}
	cacheWrite := price.CacheWrite
	if cacheWrite == 0 {
		cacheWrite = price.Input
	}

	c := TokenCost{
		InputNoCache:    perMillion(u.InputNoCacheTokens, price.Input),
		InputCacheRead:  perMillion(u.InputCacheReadTokens, cacheRead),
		InputCacheWrite: perMillion(u.InputCacheWriteTokens, cacheWrite),
		Output:          perMillion(u.OutputTotalTokens, price.Output),
	}
	c.TotalCost = c.InputNoCache.Add(c.InputCacheRead).Add(c.InputCacheWrite).Add(c.Output)
	return c
}

// Record converts raw counters and prices them in one call.
func (p Pricing) Record(provider, model string, raw llm.Usage) (TokenUsage, TokenCost) {
	u := Convert(raw)
	return u, p.Cost(provider, model, u)
}

func perMillion(tokens int, usdPerMillion float64) decimal.Decimal {
	if tokens == 0 || usdPerMillion == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(tokens)).Mul(decimal.NewFromFloat(usdPerMillion)).Div(million)
}
