// ABOUTME: Multi-step tool-use loop that drives a Client until the model stops calling tools
// ABOUTME: Supports per-step message preparation, streaming callbacks, and ctx-based abort

package llm

import (
	"context"
	"fmt"
)

// DefaultMaxSteps bounds the tool loop when Call.MaxSteps is unset.
const DefaultMaxSteps = 10

// Tool is an executable capability offered to the model.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// PrepareStepFunc may replace the message list sent for a step. step is
// zero-based; messages is the full history so far and must not be mutated.
type PrepareStepFunc func(step int, messages []Message) []Message

// Call configures one RunLoop invocation.
type Call struct {
	Client      Client
	Model       string
	Messages    []Message
	Tools       []Tool
	MaxSteps    int
	MaxTokens   int
	PrepareStep PrepareStepFunc
	// OnEvent enables streaming when set.
	OnEvent StreamCallback
}

// Step records one model call and the tools it triggered.
type Step struct {
	Index        int          `json:"index"`
	Text         string       `json:"text"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
}

// Result is the outcome of a loop run.
type Result struct {
	// Text is the final step's text.
	Text         string
	Usage        Usage
	FinishReason FinishReason
	// ResponseMessages are the assistant and tool messages produced, ready to
	// append to the input for a follow-up call.
	ResponseMessages []Message
	Steps            []Step
}

// RunLoop calls the model, executes requested tools, and repeats until the
// model answers without tool calls or MaxSteps is reached. On failure it
// returns the partial result alongside the error.
func RunLoop(ctx context.Context, call Call) (*Result, error) {
	maxSteps := call.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	specs := make([]ToolSpec, 0, len(call.Tools))
	byName := make(map[string]Tool, len(call.Tools))
	for _, t := range call.Tools {
		spec := t.Spec()
		specs = append(specs, spec)
		byName[spec.Name] = t
	}

	history := make([]Message, len(call.Messages))
	copy(history, call.Messages)
	result := &Result{}

	for i := 0; i < maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		msgs := history
		if call.PrepareStep != nil {
			msgs = call.PrepareStep(i, history)
		}

		req := &ChatRequest{
			Model:     call.Model,
			Messages:  msgs,
			Tools:     specs,
			MaxTokens: call.MaxTokens,
		}

		var resp *ChatResponse
		var err error
		if call.OnEvent != nil {
			resp, err = call.Client.ChatStream(ctx, req, call.OnEvent)
		} else {
			resp, err = call.Client.Chat(ctx, req)
		}
		if err != nil {
			return result, fmt.Errorf("step %d: %w", i, err)
		}

		step := Step{
			Index:        i,
			Text:         resp.Message.Content,
			ToolCalls:    resp.Message.ToolCalls,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
		}
		result.Text = resp.Message.Content
		result.Usage = result.Usage.Add(resp.Usage)
		result.FinishReason = resp.FinishReason

		assistant := Message{
			Role:      RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
		}
		history = append(history, assistant)
		result.ResponseMessages = append(result.ResponseMessages, assistant)

		if len(resp.Message.ToolCalls) == 0 {
			result.Steps = append(result.Steps, step)
			return result, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			tc := tc
			emit(call.OnEvent, StreamEvent{Kind: KindToolCallStart, ToolCall: &tc})

			tr := executeTool(ctx, byName, tc)
			step.ToolResults = append(step.ToolResults, tr)
			emit(call.OnEvent, StreamEvent{Kind: KindToolCallDone, ToolCall: &tc, ToolResult: &tr})

			toolMsg := Message{Role: RoleTool, Content: tr.Output, ToolCallID: tc.ID}
			history = append(history, toolMsg)
			result.ResponseMessages = append(result.ResponseMessages, toolMsg)
		}
		result.Steps = append(result.Steps, step)
	}

	return result, nil
}

func emit(cb StreamCallback, ev StreamEvent) {
	if cb != nil {
		cb(ev)
	}
}

// executeTool runs one tool call. Tool failures become error results the
// model can read rather than aborting the loop.
func executeTool(ctx context.Context, tools map[string]Tool, tc ToolCall) ToolResult {
	tr := ToolResult{ToolCallID: tc.ID, Name: tc.Name}
	t, ok := tools[tc.Name]
	if !ok {
		tr.Output = fmt.Sprintf("unknown tool %q", tc.Name)
		tr.IsError = true
		return tr
	}
	out, err := t.Execute(ctx, tc.Arguments)
	if err != nil {
		tr.Output = err.Error()
		tr.IsError = true
		return tr
	}
	tr.Output = out
	return tr
}
