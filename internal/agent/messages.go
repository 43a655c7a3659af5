// ABOUTME: Client-facing message shape and its conversion to model messages
// ABOUTME: Parts map to text, tool calls, and tool results in the order they occurred

package agent

import (
	"strings"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

// UIPart is one segment of a client message. It is persisted as-is.
type UIPart = store.MessagePart

// UIMessage is a message as clients send and receive it.
type UIMessage struct {
	ID    string   `json:"id"`
	Role  llm.Role `json:"role"`
	Parts []UIPart `json:"parts"`
}

// UserText builds a single-part user message.
func UserText(id, text string) UIMessage {
	return UIMessage{ID: id, Role: llm.RoleUser, Parts: []UIPart{{Type: store.PartText, Text: text}}}
}

// Text concatenates the message's text parts.
func (m UIMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == store.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// FromStoreMessage converts a persisted message.
func FromStoreMessage(m *store.Message) UIMessage {
	return UIMessage{ID: m.ID, Role: llm.Role(m.Role), Parts: m.Parts}
}

// ToLLMMessages converts client messages into the model-facing sequence.
// Assistant messages split at tool results: each run of text and tool calls
// becomes one assistant message followed by one tool message per result.
func ToLLMMessages(messages []UIMessage) []llm.Message {
	var out []llm.Message
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			out = append(out, assistantMessages(m.Parts)...)
		case llm.RoleSystem, llm.RoleUser:
			if text := m.Text(); text != "" {
				out = append(out, llm.Message{Role: m.Role, Content: text})
			}
		}
	}
	return out
}

func assistantMessages(parts []UIPart) []llm.Message {
	var out []llm.Message
	var cur *llm.Message

	flush := func() {
		if cur != nil && (cur.Content != "" || len(cur.ToolCalls) > 0) {
			out = append(out, *cur)
		}
		cur = nil
	}
	current := func() *llm.Message {
		if cur == nil {
			cur = &llm.Message{Role: llm.RoleAssistant}
		}
		return cur
	}

	for _, p := range parts {
		switch p.Type {
		case store.PartText:
			current().Content += p.Text
		case store.PartToolCall:
			c := current()
			c.ToolCalls = append(c.ToolCalls, llm.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Arguments: p.Input})
		case store.PartToolResult:
			flush()
			out = append(out, llm.Message{Role: llm.RoleTool, Content: p.Output, ToolCallID: p.ToolCallID})
		}
	}
	flush()
	return out
}

// partsBuilder accumulates the assistant reply while a run streams.
type partsBuilder struct {
	parts []UIPart
}

func (b *partsBuilder) text(s string) {
	if s == "" {
		return
	}
	if n := len(b.parts); n > 0 && b.parts[n-1].Type == store.PartText {
		b.parts[n-1].Text += s
		return
	}
	b.parts = append(b.parts, UIPart{Type: store.PartText, Text: s})
}

func (b *partsBuilder) toolCall(tc llm.ToolCall) {
	b.parts = append(b.parts, UIPart{
		Type:       store.PartToolCall,
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Input:      tc.Arguments,
	})
}

func (b *partsBuilder) toolResult(tr llm.ToolResult) {
	b.parts = append(b.parts, UIPart{
		Type:       store.PartToolResult,
		ToolCallID: tr.ToolCallID,
		ToolName:   tr.Name,
		Output:     tr.Output,
		IsError:    tr.IsError,
	})
}
