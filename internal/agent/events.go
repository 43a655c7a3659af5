// ABOUTME: Stream event types emitted by a session
// ABOUTME: Every stream ends with exactly one finish or error event

package agent

import (
	"time"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/usage"
)

// Stop reasons recorded beyond the provider finish reasons.
const (
	StopInterrupted = "interrupted"
	StopError       = "error"
)

// EventType indicates the type of stream event.
type EventType int

const (
	EventConversation EventType = iota
	EventTextDelta
	EventToolCall
	EventToolResult
	EventFinish
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConversation:
		return "conversation"
	case EventTextDelta:
		return "text-delta"
	case EventToolCall:
		return "tool-call"
	case EventToolResult:
		return "tool-result"
	case EventFinish:
		return "finish"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ConversationInfo announces a conversation to the client.
type ConversationInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StreamEvent is one event on a session stream. Exactly one EventFinish or
// EventError ends every stream.
type StreamEvent struct {
	Type         EventType
	Conversation *ConversationInfo
	Text         string
	ToolCall     *llm.ToolCall
	ToolResult   *llm.ToolResult
	FinishReason string
	MessageID    string
	Usage        *usage.TokenUsage
	Cost         *usage.TokenCost
	Error        string
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventFinish || e.Type == EventError
}

// StreamOptions controls a Stream call.
type StreamOptions struct {
	// AnnounceConversation emits EventConversation first, for newly created
	// conversations.
	AnnounceConversation bool
}
