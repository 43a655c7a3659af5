// ABOUTME: Conversation service is the request layer in front of the agent registry
// ABOUTME: Record first, then act: the user message is saved before any model call

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/agent"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

var (
	// ErrNotOwner is returned when a user acts on someone else's conversation.
	ErrNotOwner = errors.New("conversation belongs to another user")
	// ErrNoActiveSession is returned by Stop when nothing is running.
	ErrNoActiveSession = errors.New("no active session for conversation")
	// ErrDuplicateRequest is returned when a request id is submitted twice.
	ErrDuplicateRequest = errors.New("duplicate request")
)

const (
	maxTitleRunes       = 60
	defaultHistoryLimit = 100

	requestWindowTTL  = 10 * time.Minute
	requestWindowSize = 10000
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	UpsertMessage(ctx context.Context, msg *store.Message, meta store.MessageMeta) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
}

// Sessions defines what the service needs from the agent registry
type Sessions interface {
	Create(ctx context.Context, conv *store.Conversation, selection *agent.ModelSelection) (*agent.Session, error)
	Get(conversationID string) (*agent.Session, bool)
}

// Service ensures conversations exist, records user messages, and starts
// agent runs over the recorded history.
type Service struct {
	store        ConversationStore
	sessions     Sessions
	historyLimit int
	requests     *dedupe.Window
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistoryLimit bounds how many stored messages are replayed per turn.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithRequestWindow sets how long request ids are remembered.
func WithRequestWindow(w *dedupe.Window) Option {
	return func(s *Service) { s.requests = w }
}

// New creates a conversation Service
func New(st ConversationStore, sessions Sessions, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        st,
		sessions:     sessions,
		historyLimit: defaultHistoryLimit,
		requests:     dedupe.New(requestWindowTTL, requestWindowSize),
		now:          time.Now,
		logger:       logger.With("component", "conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChatRequest is one user turn.
type ChatRequest struct {
	// ConversationID continues a conversation; empty starts a new one.
	ConversationID string
	UserID         string
	ProjectID      string
	Prompt         string
	// Selection forces a provider and model; nil lets the registry resolve.
	Selection *agent.ModelSelection
	// RequestID identifies the submission; a repeat is rejected.
	RequestID string
}

// ChatResponse carries the running turn.
type ChatResponse struct {
	Conversation *store.Conversation
	Created      bool
	MessageID    string // ID of the recorded user message
	Stream       <-chan agent.StreamEvent
}

// Start records the user's prompt and streams the agent's reply. The stream
// ends when ctx is cancelled or the run finishes; either way the reply is
// persisted.
func (s *Service) Start(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	if req.RequestID != "" {
		key := req.UserID + "/" + req.RequestID
		if s.requests.Seen(key) {
			s.logger.Warn("duplicate request rejected", "request_id", req.RequestID)
			return nil, ErrDuplicateRequest
		}
		resp, err := s.start(ctx, req)
		if err != nil {
			// Nothing ran, so the client may retry
			s.requests.Forget(key)
		}
		return resp, err
	}
	return s.start(ctx, req)
}

func (s *Service) start(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	// 1. Resolve or create the conversation
	conv, created, err := s.ensureConversation(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("conversation resolution failed: %w", err)
	}
	if conv.UserID != req.UserID {
		return nil, ErrNotOwner
	}

	// 2. Record the user message FIRST
	messageID := uuid.New().String()
	userMsg := &store.Message{
		ID:             messageID,
		ConversationID: conv.ID,
		Role:           string(llm.RoleUser),
		Parts:          []store.MessagePart{{Type: store.PartText, Text: req.Prompt}},
		CreatedAt:      s.now(),
	}
	if err := s.store.UpsertMessage(ctx, userMsg, store.MessageMeta{ConversationID: conv.ID}); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conv.ID,
		"message_id", messageID)

	// 3. Replay history, which now ends with the user message
	history, err := s.History(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	// 4. Start the agent
	sess, err := s.sessions.Create(ctx, conv, req.Selection)
	if err != nil {
		return nil, fmt.Errorf("starting agent: %w", err)
	}

	s.logger.Info("agent run started",
		"conversation_id", conv.ID,
		"model_id", sess.ModelID(),
		"created", created,
		"history", len(history))

	return &ChatResponse{
		Conversation: conv,
		Created:      created,
		MessageID:    messageID,
		Stream:       sess.Stream(history, agent.StreamOptions{AnnounceConversation: created}),
	}, nil
}

// Stop aborts the running turn of a conversation on behalf of userID.
func (s *Service) Stop(conversationID, userID string) error {
	sess, ok := s.sessions.Get(conversationID)
	if !ok {
		return ErrNoActiveSession
	}
	if !sess.CheckIsUserOwner(userID) {
		return ErrNotOwner
	}
	sess.Stop()
	s.logger.Info("agent run stopped", "conversation_id", conversationID)
	return nil
}

// History returns a conversation's recorded messages in client form.
func (s *Service) History(ctx context.Context, conversationID string) ([]agent.UIMessage, error) {
	msgs, err := s.store.GetConversationMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	out := make([]agent.UIMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.FromStoreMessage(m))
	}
	return out, nil
}

// ensureConversation loads the requested conversation or creates it. The
// bool reports whether it was created by this call.
func (s *Service) ensureConversation(ctx context.Context, req ChatRequest) (*store.Conversation, bool, error) {
	if req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, req.ConversationID)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	if req.ProjectID == "" {
		return nil, false, fmt.Errorf("project_id is required for a new conversation")
	}

	id := req.ConversationID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now()
	conv := &store.Conversation{
		ID:        id,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Title:     Title(req.Prompt),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Another request may have created it between lookup and insert
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := s.store.GetConversation(ctx, id)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", id)
				return existing, false, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, false, err
	}

	s.logger.Debug("conversation created", "conversation_id", id)
	return conv, true, nil
}

// Title derives a conversation title from its first prompt.
func Title(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleRunes])
}
