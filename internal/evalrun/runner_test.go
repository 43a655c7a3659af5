package evalrun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

func newSessions(t *testing.T, client llm.Client) *agent.Service {
	t.Helper()
	cfg := config.Default("")
	cfg.Providers = map[string]config.ProviderConfig{"openai": {APIKey: "sk-test"}}
	t.Setenv("ANTHROPIC_API_KEY", "")
	return agent.NewService(store.NewMockStore(), config.NewEnvironment(cfg),
		agent.WithClientFactory(func(llm.Provider, llm.ClientConfig) (llm.Client, error) {
			return client, nil
		}),
	)
}

func answer(text string) llm.ScriptedStep {
	return llm.ScriptedStep{Response: llm.TextResponse(text, llm.Usage{InputTokens: 1000, OutputTokens: 100})}
}

func TestRunner_Run(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedStep{Response: llm.ToolCallResponse(llm.Usage{InputTokens: 10},
			llm.ToolCall{ID: "t1", Name: "current_time", Arguments: map[string]any{"timezone": "UTC"}})},
		answer("It is Friday in Paris"),
		answer("I am not sure"),
	)
	sessions := newSessions(t, client)
	runner := NewRunner(sessions, Options{ProjectID: "eval", UserID: "eval"}, nil)

	cases := []*Case{
		{Name: "day", Prompt: "What day is it?", Expect: []string{"friday"}},
		{Name: "capital", Prompt: "Capital of France?", Expect: []string{"paris"}},
	}
	models := []agent.ModelSelection{{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}}

	results, err := runner.Run(context.Background(), cases, models)
	require.NoError(t, err)
	require.Len(t, results, 2)

	day := results[0]
	assert.Equal(t, "day", day.Name)
	assert.Equal(t, "openai:gpt-4.1", day.Model)
	assert.True(t, day.Passed)
	assert.Equal(t, 1, day.ToolCallCount)
	assert.Equal(t, 1110, day.Tokens)
	require.NotNil(t, day.Details)
	require.Len(t, day.Details.ToolCalls, 1)
	assert.Equal(t, "current_time", day.Details.ToolCalls[0].ToolName)
	assert.NotEmpty(t, day.Details.ToolCalls[0].Output)

	capital := results[1]
	assert.False(t, capital.Passed)
	assert.Equal(t, `missing "paris"`, capital.Message)
	assert.Empty(t, capital.Error)

	assert.Equal(t, 0, sessions.Len())
}

func TestRunner_CreateFailureIsAResult(t *testing.T) {
	runner := NewRunner(newSessions(t, llm.NewScriptedClient(answer("ok"))), Options{ProjectID: "eval"}, nil)

	models := []agent.ModelSelection{
		{Provider: llm.ProviderAnthropic, ModelID: "claude-sonnet-4-5"},
		{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"},
	}
	results, err := runner.Run(context.Background(), []*Case{{Name: "hello", Prompt: "hi"}}, models)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Passed)
	assert.Equal(t, "error", results[0].Message)
	assert.Contains(t, results[0].Error, "no model configured")
	assert.Nil(t, results[0].Details)

	assert.True(t, results[1].Passed)
	assert.Equal(t, "no verification", results[1].Message)
}

func TestRunner_ParallelKeepsOrder(t *testing.T) {
	var steps []llm.ScriptedStep
	for i := 0; i < 12; i++ {
		steps = append(steps, answer("same answer"))
	}
	runner := NewRunner(newSessions(t, llm.NewScriptedClient(steps...)),
		Options{ProjectID: "eval", Parallel: 4, RequestsPerSecond: 1000}, nil)

	var cases []*Case
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		cases = append(cases, &Case{Name: name, Prompt: name})
	}
	models := []agent.ModelSelection{
		{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"},
		{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1-mini"},
	}

	results, err := runner.Run(context.Background(), cases, models)
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, cases[i%6].Name, r.Name)
		assert.Equal(t, models[i/6].String(), r.Model)
		assert.True(t, r.Passed)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	runner := NewRunner(newSessions(t, llm.NewScriptedClient()), Options{ProjectID: "eval"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := runner.Run(ctx, []*Case{{Name: "a", Prompt: "a"}},
		[]agent.ModelSelection{{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunner_NoCases(t *testing.T) {
	_, err := NewRunner(nil, Options{}, nil).Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoCases)
}

func TestRunner_VerifiesDataAgainstReferenceSQL(t *testing.T) {
	client := llm.NewScriptedClient(
		answer("EU brought in 1200.5 across 3 orders."),
		answer("```json\n[{\"region\": \"eu\", \"revenue\": 1200.5}]\n```"),
		answer("US made about 900."),
		answer(`[{"region": "us", "revenue": 900}]`),
		answer("Not sure."),
		answer("I cannot answer that."),
	)
	runner := NewRunner(newSessions(t, client), Options{ProjectID: "eval", Data: newWarehouse(t)}, nil)

	cases := []*Case{
		{Name: "eu", Prompt: "EU revenue?", SQL: "SELECT region, revenue FROM orders WHERE region = 'eu'"},
		{Name: "us", Prompt: "US revenue?", SQL: "SELECT region, revenue, orders FROM orders WHERE region = 'us'",
			Columns: []string{"region", "revenue"}},
		{Name: "unknown", Prompt: "Total?", SQL: "SELECT SUM(revenue) AS total FROM orders"},
	}
	results, err := runner.Run(context.Background(), cases,
		[]agent.ModelSelection{{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	eu := results[0]
	assert.True(t, eu.Passed)
	assert.Equal(t, "match", eu.Message)
	assert.Equal(t, 2200, eu.Tokens)
	require.NotNil(t, eu.Details)
	assert.Equal(t, "EU brought in 1200.5 across 3 orders.", eu.Details.ResponseText)
	require.Len(t, eu.Details.ActualData, 1)
	require.Len(t, eu.Details.ExpectedData, 1)
	assert.Equal(t, "eu", eu.Details.ExpectedData[0]["region"])

	us := results[1]
	assert.False(t, us.Passed)
	assert.Equal(t, "values differ", us.Message)
	assert.Contains(t, us.Details.Comparison, "revenue")
	assert.NotContains(t, us.Details.Comparison, "orders")

	unknown := results[2]
	assert.False(t, unknown.Passed)
	assert.Contains(t, unknown.Message, ErrNoRows.Error())
	assert.Empty(t, unknown.Error)

	reqs := client.Requests()
	require.Len(t, reqs, 6)
	followUp := reqs[1].Messages
	last := followUp[len(followUp)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "region, revenue")
	assert.Equal(t, llm.RoleAssistant, followUp[len(followUp)-2].Role)
	assert.Equal(t, "EU brought in 1200.5 across 3 orders.", followUp[len(followUp)-2].Content)
}

func TestRunner_SQLWithoutDatabaseUsesExpect(t *testing.T) {
	client := llm.NewScriptedClient(answer("Revenue was 42"))
	runner := NewRunner(newSessions(t, client), Options{ProjectID: "eval"}, nil)

	results, err := runner.Run(context.Background(),
		[]*Case{{Name: "r", Prompt: "Revenue?", SQL: "SELECT 42", Expect: []string{"42"}}},
		[]agent.ModelSelection{{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Equal(t, "match", results[0].Message)
	assert.Nil(t, results[0].Details.ExpectedData)
	assert.Len(t, client.Requests(), 1)
}
