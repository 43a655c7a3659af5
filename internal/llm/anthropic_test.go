// ABOUTME: Tests for the Anthropic client's message conversion and SSE handling
// ABOUTME: Uses httptest servers that speak the Messages API streaming dialect

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToAnthropic_SystemAndCacheHints(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You are helpful.", Cache: CacheLong},
		{Role: RoleUser, Content: "Hello!"},
		{Role: RoleAssistant, Content: "Hi there!"},
		{Role: RoleUser, Content: "Summarize.", Cache: CacheShort},
	}

	result, system := convertToAnthropic(messages)

	require.Len(t, system, 1)
	assert.Equal(t, "You are helpful.", system[0].Text)
	require.NotNil(t, system[0].CacheControl)
	assert.Equal(t, "ephemeral", system[0].CacheControl.Type)
	assert.Equal(t, "1h", system[0].CacheControl.TTL)

	require.Len(t, result, 3)
	assert.Nil(t, result[0].Content[0].CacheControl)
	assert.Nil(t, result[1].Content[0].CacheControl)
	require.NotNil(t, result[2].Content[0].CacheControl)
	assert.Equal(t, "5m", result[2].Content[0].CacheControl.TTL)
}

func TestConvertToAnthropic_ToolTurns(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "Look two things up."},
		{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				{ID: "toolu_a", Name: "lookup", Arguments: map[string]any{"q": "a"}},
				{ID: "toolu_b", Name: "lookup", Arguments: map[string]any{"q": "b"}},
			},
		},
		{Role: RoleTool, Content: "A", ToolCallID: "toolu_a"},
		{Role: RoleTool, Content: "B", ToolCallID: "toolu_b", Cache: CacheShort},
	}

	result, system := convertToAnthropic(messages)
	assert.Empty(t, system)
	require.Len(t, result, 3, "consecutive tool results share one user turn")

	assistant := result[1]
	require.Len(t, assistant.Content, 2)
	assert.Equal(t, "tool_use", assistant.Content[0].Type)
	assert.Equal(t, "toolu_a", assistant.Content[0].ID)

	results := result[2]
	assert.Equal(t, "user", results.Role)
	require.Len(t, results.Content, 2)
	assert.Equal(t, "toolu_a", results.Content[0].ToolUseID)
	assert.Equal(t, "toolu_b", results.Content[1].ToolUseID)
	require.NotNil(t, results.Content[1].CacheControl)
}

func TestAnthropicFinishReason(t *testing.T) {
	assert.Equal(t, FinishStop, anthropicFinishReason("end_turn"))
	assert.Equal(t, FinishLength, anthropicFinishReason("max_tokens"))
	assert.Equal(t, FinishToolCalls, anthropicFinishReason("tool_use"))
	assert.Equal(t, FinishUnknown, anthropicFinishReason(""))
	assert.Equal(t, FinishOther, anthropicFinishReason("pause_turn"))
}

const anthropicStreamBody = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","role":"assistant","model":"claude-test","content":[],"usage":{"input_tokens":10,"cache_read_input_tokens":100,"cache_creation_input_tokens":20,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"lookup","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"x\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":42}}

event: message_stop
data: {"type":"message_stop"}
`

func TestAnthropicClient_ChatStream(t *testing.T) {
	var gotBody map[string]any
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		gotHeaders = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(anthropicStreamBody))
	}))
	defer srv.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

	var tokens []string
	resp, err := client.ChatStream(context.Background(), &ChatRequest{
		Model: "claude-test",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys", Cache: CacheLong},
			{Role: RoleUser, Content: "hi", Cache: CacheShort},
		},
		Tools: []ToolSpec{{Name: "lookup", Description: "Look something up"}},
	}, func(ev StreamEvent) {
		if ev.Kind == KindToken {
			tokens = append(tokens, ev.Token)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-test", gotHeaders.Get("x-api-key"))
	assert.Equal(t, anthropicAPIVersion, gotHeaders.Get("anthropic-version"))
	assert.Equal(t, true, gotBody["stream"])
	system := gotBody["system"].([]any)[0].(map[string]any)
	assert.Equal(t, "1h", system["cache_control"].(map[string]any)["ttl"])

	assert.Equal(t, []string{"Hel", "lo"}, tokens)
	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"q": "x"}, resp.Message.ToolCalls[0].Arguments)

	assert.Equal(t, Usage{
		InputTokens:      130,
		OutputTokens:     42,
		CacheReadTokens:  100,
		CacheWriteTokens: 20,
	}, resp.Usage)
}

func TestAnthropicClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_2", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "Done."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)
	resp, err := client.Chat(context.Background(), &ChatRequest{
		Model:    "claude-test",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Message.Content)
	assert.Equal(t, FinishStop, resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.InputTokens)
}

func TestAnthropicClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "sk-bad", BaseURL: srv.URL}, nil)
	_, err := client.Chat(context.Background(), &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.NotContains(t, err.Error(), "sk-bad")
}

func TestAnthropicClient_StreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Join([]string{
			`data: {"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":3}}}`,
			``,
			`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			``,
		}, "\n")))
	}))
	defer srv.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := client.ChatStream(context.Background(), &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}}, func(StreamEvent) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}
