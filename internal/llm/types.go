// ABOUTME: Provider-neutral message, tool, usage, and stream event types
// ABOUTME: Shared by provider clients, the tool loop, and agent sessions

package llm

import "log/slog"

// LevelTrace is a slog level below Debug for wire-level payloads.
const LevelTrace = slog.Level(-8)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// CacheRetention is a transient prompt-caching hint on a message. It is never
// persisted; providers that support caching render it on the wire.
type CacheRetention string

const (
	CacheNone  CacheRetention = ""
	CacheShort CacheRetention = "5m"
	CacheLong  CacheRetention = "1h"
)

// Message is one entry in the model-facing conversation.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Cache      CacheRetention `json:"-"`
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the output of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Output     string `json:"output"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolSpec describes a tool to the model. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage holds raw token counters reported by a provider, normalized so that
// InputTokens includes cached input and OutputTokens includes reasoning.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	ReasoningTokens  int
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
		ReasoningTokens:  u.ReasoningTokens + o.ReasoningTokens,
	}
}

// FinishReason is the normalized reason a generation step ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

// ChatRequest is one model call.
type ChatRequest struct {
	Model     string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// ChatResponse is the completed result of one model call.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason FinishReason
	Usage        Usage
}

// StreamEventKind identifies the type of a streaming event.
type StreamEventKind string

const (
	// KindToken carries an incremental text chunk.
	KindToken StreamEventKind = "token"
	// KindToolCallStart is emitted before a tool executes.
	KindToolCallStart StreamEventKind = "tool_call_start"
	// KindToolCallDone is emitted after a tool returns.
	KindToolCallDone StreamEventKind = "tool_call_done"
)

// StreamEvent is delivered to a StreamCallback during generation.
type StreamEvent struct {
	Kind       StreamEventKind
	Token      string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// StreamCallback receives streaming events. It is called synchronously from
// the generating goroutine.
type StreamCallback func(StreamEvent)
