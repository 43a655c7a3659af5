// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and inspect recorded message upserts

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// UpsertCall is one recorded UpsertMessage invocation.
type UpsertCall struct {
	Message Message
	Meta    MessageMeta
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message   // keyed by conversation ID
	configs       map[string][]*LLMConfig // keyed by project ID, insertion order
	usage         []*MessageUsage
	upserts       []UpsertCall

	configErr error
	upsertErr error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		configs:       make(map[string][]*LLMConfig),
	}
}

// SetConfigError makes config reads fail with err until cleared with nil.
func (m *MockStore) SetConfigError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configErr = err
}

// SetUpsertError makes UpsertMessage fail with err until cleared with nil.
func (m *MockStore) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// Upserts returns copies of every successful UpsertMessage call in order.
func (m *MockStore) Upserts() []UpsertCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UpsertCall, len(m.upserts))
	copy(out, m.upserts)
	return out
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; ok {
		return ErrDuplicateConversation
	}
	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// UpdateConversation replaces a conversation's title and updated_at.
func (m *MockStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conv.ID]
	if !ok {
		return ErrNotFound
	}
	c.Title = conv.Title
	c.UpdatedAt = conv.UpdatedAt
	return nil
}

// ListConversations returns a user's conversations, most recently updated first.
func (m *MockStore) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertMessage records the call and stores or replaces the message.
func (m *MockStore) UpsertMessage(ctx context.Context, msg *Message, meta MessageMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}

	stored := *msg
	if stored.ConversationID == "" {
		stored.ConversationID = meta.ConversationID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.StopReason = firstNonEmpty(meta.StopReason, stored.StopReason)
	stored.Error = firstNonEmpty(meta.Error, stored.Error)
	stored.LLMProvider = firstNonEmpty(meta.LLMProvider, stored.LLMProvider)
	stored.LLMModelID = firstNonEmpty(meta.LLMModelID, stored.LLMModelID)
	stored.Parts = append([]MessagePart(nil), msg.Parts...)

	msgs := m.messages[stored.ConversationID]
	replaced := false
	for i, existing := range msgs {
		if existing.ID == stored.ID {
			stored.CreatedAt = existing.CreatedAt
			msgs[i] = &stored
			replaced = true
			break
		}
	}
	if !replaced {
		m.messages[stored.ConversationID] = append(msgs, &stored)
	}

	if meta.Usage != nil {
		mu := &MessageUsage{
			MessageID:      stored.ID,
			ConversationID: stored.ConversationID,
			LLMProvider:    stored.LLMProvider,
			LLMModelID:     stored.LLMModelID,
			Usage:          *meta.Usage,
			CreatedAt:      time.Now(),
		}
		if meta.Cost != nil {
			mu.Cost = *meta.Cost
		}
		m.usage = append(m.usage, mu)
	}

	m.upserts = append(m.upserts, UpsertCall{Message: stored, Meta: meta})
	return nil
}

// GetConversationMessages returns messages in insertion order, keeping the
// most recent `limit` when limit is positive.
func (m *MockStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

// UpsertProjectLLMConfig creates or replaces a project's provider config.
func (m *MockStore) UpsertProjectLLMConfig(ctx context.Context, cfg *LLMConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *cfg
	configs := m.configs[c.ProjectID]
	for i, existing := range configs {
		if existing.Provider == c.Provider {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
			configs[i] = &c
			return nil
		}
	}
	m.configs[c.ProjectID] = append(configs, &c)
	return nil
}

// GetProjectLLMConfigs returns a project's configs in insertion order.
func (m *MockStore) GetProjectLLMConfigs(ctx context.Context, projectID string) ([]*LLMConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.configErr != nil {
		return nil, m.configErr
	}
	out := make([]*LLMConfig, 0, len(m.configs[projectID]))
	for _, c := range m.configs[projectID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// GetProjectLLMConfigByProvider returns a project's config for one provider.
func (m *MockStore) GetProjectLLMConfigByProvider(ctx context.Context, projectID, provider string) (*LLMConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.configErr != nil {
		return nil, m.configErr
	}
	for _, c := range m.configs[projectID] {
		if c.Provider == provider {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// DeleteProjectLLMConfig removes a project's config for a provider.
func (m *MockStore) DeleteProjectLLMConfig(ctx context.Context, projectID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	configs := m.configs[projectID]
	for i, c := range configs {
		if c.Provider == provider {
			m.configs[projectID] = append(configs[:i], configs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// GetConversationUsage returns usage recorded for a conversation.
func (m *MockStore) GetConversationUsage(ctx context.Context, conversationID string) ([]*MessageUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MessageUsage
	for _, u := range m.usage {
		if u.ConversationID == conversationID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetUsageStats aggregates recorded usage matching filter.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &UsageStats{TotalCost: decimal.Zero}
	for _, u := range m.usage {
		if filter.ConversationID != nil && u.ConversationID != *filter.ConversationID {
			continue
		}
		if filter.LLMProvider != nil && u.LLMProvider != *filter.LLMProvider {
			continue
		}
		if filter.Since != nil && u.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !u.CreatedAt.Before(*filter.Until) {
			continue
		}
		stats.add(u)
	}
	return stats, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
