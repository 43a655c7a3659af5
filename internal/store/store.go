// ABOUTME: Store interfaces and data types for parley persistence
// ABOUTME: Conversations, messages with generation metadata, project LLM configs, and usage

package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/2389/parley/internal/usage"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose ID already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation is a chat owned by one user within one project.
type Conversation struct {
	ID        string
	UserID    string
	ProjectID string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message part types
const (
	PartText       = "text"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

// MessagePart is one segment of a client-facing message.
type MessagePart struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	IsError    bool           `json:"isError,omitempty"`
}

// Message is a persisted conversation message. Generation metadata is empty
// for user messages.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Parts          []MessagePart
	StopReason     string
	Error          string
	LLMProvider    string
	LLMModelID     string
	CreatedAt      time.Time
}

// MessageMeta carries the accounting recorded alongside an upserted message.
type MessageMeta struct {
	ConversationID string
	StopReason     string
	Error          string
	Usage          *usage.TokenUsage
	Cost           *usage.TokenCost
	LLMProvider    string
	LLMModelID     string
}

// LLMConfig is a project's stored credential for one provider.
// APIKey is sensitive and must never be logged.
type LLMConfig struct {
	ID        string
	ProjectID string
	Provider  string
	APIKey    string
	BaseURL   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageUsage is the usage and cost recorded for one assistant message.
type MessageUsage struct {
	MessageID      string
	ConversationID string
	LLMProvider    string
	LLMModelID     string
	Usage          usage.TokenUsage
	Cost           usage.TokenCost
	CreatedAt      time.Time
}

// UsageFilter narrows usage statistics queries. Nil fields are not applied.
type UsageFilter struct {
	ConversationID *string
	LLMProvider    *string
	Since          *time.Time
	Until          *time.Time
}

// UsageStats is aggregated usage across messages.
type UsageStats struct {
	MessageCount          int64
	InputTotalTokens      int64
	InputCacheReadTokens  int64
	InputCacheWriteTokens int64
	OutputTotalTokens     int64
	OutputReasoningTokens int64
	TotalTokens           int64
	TotalCost             decimal.Decimal
}

// ConversationStore manages conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	// UpsertMessage inserts or replaces a message by ID and records its
	// usage when meta carries one.
	UpsertMessage(ctx context.Context, msg *Message, meta MessageMeta) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// LLMConfigStore manages per-project provider credentials.
type LLMConfigStore interface {
	UpsertProjectLLMConfig(ctx context.Context, cfg *LLMConfig) error
	// GetProjectLLMConfigs returns a project's configs in insertion order.
	GetProjectLLMConfigs(ctx context.Context, projectID string) ([]*LLMConfig, error)
	GetProjectLLMConfigByProvider(ctx context.Context, projectID, provider string) (*LLMConfig, error)
	DeleteProjectLLMConfig(ctx context.Context, projectID, provider string) error
}

// UsageStore reads recorded token usage.
type UsageStore interface {
	GetConversationUsage(ctx context.Context, conversationID string) ([]*MessageUsage, error)
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
}

// Store is the full persistence interface.
type Store interface {
	ConversationStore
	MessageStore
	LLMConfigStore
	UsageStore
	Close() error
}
