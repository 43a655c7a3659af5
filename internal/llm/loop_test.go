// ABOUTME: Tests for the tool-use loop driven by a scripted client
// ABOUTME: Covers tool execution, PrepareStep indexing, step limits, and cancellation

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return FuncTool{
		Def: ToolSpec{Name: "echo", Description: "Echo the input"},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			if s == "" {
				return "", errors.New("text is required")
			}
			return "echo: " + s, nil
		},
	}
}

func TestRunLoop_ToolThenAnswer(t *testing.T) {
	client := NewScriptedClient(
		ScriptedStep{Response: ToolCallResponse(Usage{InputTokens: 10, OutputTokens: 2},
			ToolCall{ID: "t1", Name: "echo", Arguments: map[string]any{"text": "ping"}},
			ToolCall{ID: "t2", Name: "missing"},
		)},
		ScriptedStep{Response: TextResponse("pong", Usage{InputTokens: 20, OutputTokens: 3})},
	)

	var prepared []int
	res, err := RunLoop(context.Background(), Call{
		Client:   client,
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
		Tools:    []Tool{echoTool()},
		PrepareStep: func(step int, msgs []Message) []Message {
			prepared = append(prepared, step)
			return msgs
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, prepared)
	assert.Equal(t, "pong", res.Text)
	assert.Equal(t, FinishStop, res.FinishReason)
	assert.Equal(t, Usage{InputTokens: 30, OutputTokens: 5}, res.Usage)

	require.Len(t, res.Steps, 2)
	require.Len(t, res.Steps[0].ToolResults, 2)
	assert.Equal(t, "echo: ping", res.Steps[0].ToolResults[0].Output)
	assert.False(t, res.Steps[0].ToolResults[0].IsError)
	assert.True(t, res.Steps[0].ToolResults[1].IsError)

	// assistant(tool calls), tool, tool, assistant(text)
	require.Len(t, res.ResponseMessages, 4)
	assert.Equal(t, RoleTool, res.ResponseMessages[1].Role)
	assert.Equal(t, "t1", res.ResponseMessages[1].ToolCallID)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 4, "second step sees user, assistant and both tool results")
}

func TestRunLoop_StreamsToolEvents(t *testing.T) {
	client := NewScriptedClient(
		ScriptedStep{Response: ToolCallResponse(Usage{}, ToolCall{ID: "t1", Name: "echo", Arguments: map[string]any{"text": "a"}})},
		ScriptedStep{Response: TextResponse("done", Usage{}), Chunks: []string{"do", "ne"}},
	)

	var kinds []StreamEventKind
	_, err := RunLoop(context.Background(), Call{
		Client:   client,
		Messages: []Message{{Role: RoleUser, Content: "go"}},
		Tools:    []Tool{echoTool()},
		OnEvent:  func(ev StreamEvent) { kinds = append(kinds, ev.Kind) },
	})
	require.NoError(t, err)
	assert.Equal(t, []StreamEventKind{KindToolCallStart, KindToolCallDone, KindToken, KindToken}, kinds)
}

func TestRunLoop_MaxSteps(t *testing.T) {
	call := ToolCall{ID: "t", Name: "echo", Arguments: map[string]any{"text": "again"}}
	client := NewScriptedClient(
		ScriptedStep{Response: ToolCallResponse(Usage{}, call)},
		ScriptedStep{Response: ToolCallResponse(Usage{}, call)},
	)

	res, err := RunLoop(context.Background(), Call{
		Client:   client,
		Messages: []Message{{Role: RoleUser, Content: "loop"}},
		Tools:    []Tool{echoTool()},
		MaxSteps: 2,
	})
	require.NoError(t, err)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, FinishToolCalls, res.FinishReason)
}

func TestRunLoop_CancelledMidStep(t *testing.T) {
	started := make(chan struct{})
	client := NewScriptedClient(
		ScriptedStep{Response: TextResponse("partial", Usage{}), Chunks: []string{"part"}, BlockUntilCancel: true, Started: started},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res, err := RunLoop(ctx, Call{
		Client:   client,
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		OnEvent:  func(StreamEvent) {},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Steps)
}

func TestRunLoop_ProviderError(t *testing.T) {
	boom := errors.New("provider exploded")
	client := NewScriptedClient(ScriptedStep{Err: boom})

	res, err := RunLoop(context.Background(), Call{
		Client:   client,
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, FinishReason(""), res.FinishReason)
}
