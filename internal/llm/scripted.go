// ABOUTME: Deterministic Client that replays scripted responses
// ABOUTME: Used by tests and dry runs to exercise sessions without a network

package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedClient has no steps left.
var ErrScriptExhausted = errors.New("scripted client: no steps left")

// ScriptedStep is one canned model call.
type ScriptedStep struct {
	Response *ChatResponse
	Err      error
	// Chunks are streamed as tokens before the response is returned. When
	// empty, the response content is streamed as one chunk.
	Chunks []string
	// BlockUntilCancel makes the step wait for ctx cancellation after
	// streaming its chunks.
	BlockUntilCancel bool
	// Started is closed when the step begins, if non-nil.
	Started chan struct{}
}

// ScriptedClient implements Client by replaying Steps in order.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	requests []*ChatRequest
}

// NewScriptedClient creates a client that replays steps in order.
func NewScriptedClient(steps ...ScriptedStep) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// Chat replays the next step without streaming.
func (c *ScriptedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return c.ChatStream(ctx, req, nil)
}

// ChatStream replays the next step, streaming its chunks when callback is set.
func (c *ScriptedClient) ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) (*ChatResponse, error) {
	c.mu.Lock()
	captured := *req
	captured.Messages = append([]Message(nil), req.Messages...)
	c.requests = append(c.requests, &captured)
	if len(c.steps) == 0 {
		c.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	c.mu.Unlock()

	if step.Started != nil {
		close(step.Started)
	}

	if callback != nil {
		chunks := step.Chunks
		if len(chunks) == 0 && step.Response != nil && step.Response.Message.Content != "" {
			chunks = []string{step.Response.Message.Content}
		}
		for _, chunk := range chunks {
			callback(StreamEvent{Kind: KindToken, Token: chunk})
		}
	}

	if step.BlockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step.Response == nil {
		return &ChatResponse{Message: Message{Role: RoleAssistant}, FinishReason: FinishStop}, nil
	}
	resp := *step.Response
	return &resp, nil
}

// Requests returns the requests received so far.
func (c *ScriptedClient) Requests() []*ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// TextResponse builds a final text response.
func TextResponse(text string, usage Usage) *ChatResponse {
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, Content: text},
		FinishReason: FinishStop,
		Usage:        usage,
	}
}

// ToolCallResponse builds a response requesting the given tool calls.
func ToolCallResponse(usage Usage, calls ...ToolCall) *ChatResponse {
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, ToolCalls: calls},
		FinishReason: FinishToolCalls,
		Usage:        usage,
	}
}
