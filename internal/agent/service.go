// ABOUTME: Registry of live agent sessions keyed by conversation id
// ABOUTME: Creating a session for a conversation stops and replaces the previous one

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/usage"
)

// ClientFactory builds a provider client from resolved credentials.
type ClientFactory func(p llm.Provider, cfg llm.ClientConfig) (llm.Client, error)

// Service creates sessions and keeps at most one per conversation.
type Service struct {
	store     Store
	resolver  *Resolver
	loader    *ConfigLoader
	newClient ClientFactory
	pricing   usage.Pricing
	tools     []llm.Tool
	prompt    *Instructions
	limits    limits
	now       func() time.Time

	sessions map[string]*Session
	mu       sync.Mutex
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClientFactory replaces the provider table's client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Service) { s.newClient = f }
}

// WithPricing sets the table used to cost usage.
func WithPricing(p usage.Pricing) Option {
	return func(s *Service) { s.pricing = p }
}

// WithTools sets the tools offered to the model. Nil offers none.
func WithTools(tools ...llm.Tool) Option {
	return func(s *Service) { s.tools = tools }
}

// WithInstructions sets the system prompt template.
func WithInstructions(i *Instructions) Option {
	return func(s *Service) { s.prompt = i }
}

// WithLimits bounds tool-loop steps and output tokens per step. Zero keeps
// the default.
func WithLimits(maxSteps, maxTokens int) Option {
	return func(s *Service) {
		if maxSteps > 0 {
			s.limits.maxSteps = maxSteps
		}
		if maxTokens > 0 {
			s.limits.maxTokens = maxTokens
		}
	}
}

// WithPersistTimeout bounds the write of a streamed reply.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.limits.persistTimeout = d
		}
	}
}

// WithTerminalGrace bounds how long a finished stream waits for a departed
// reader to take its terminal event.
func WithTerminalGrace(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.limits.terminalGrace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides time.Now for prompts and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over st and env.
func NewService(st Store, env Environment, opts ...Option) *Service {
	s := &Service{
		store:    st,
		pricing:  usage.DefaultPricing(),
		tools:    DefaultTools(),
		prompt:   DefaultInstructions(),
		now:      time.Now,
		sessions: make(map[string]*Session),
		logger:   slog.Default(),
		limits: limits{
			maxSteps:       llm.DefaultMaxSteps,
			maxTokens:      4096,
			persistTimeout: 5 * time.Second,
			terminalGrace:  2 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "agent")
	if s.newClient == nil {
		logger := s.logger
		s.newClient = func(p llm.Provider, cfg llm.ClientConfig) (llm.Client, error) {
			return llm.NewClient(p, cfg, logger)
		}
	}
	s.resolver = NewResolver(st, env, s.logger)
	s.loader = NewConfigLoader(st, env)
	return s
}

// Create resolves a model for conv, builds its client, and installs a new
// session, stopping any session already running for the conversation. The
// session lives until ctx is cancelled or its run finishes. Nothing is
// registered when resolution or client construction fails.
func (s *Service) Create(ctx context.Context, conv *store.Conversation, selection *ModelSelection) (*Session, error) {
	sel, err := s.resolver.Resolve(ctx, conv.ProjectID, selection)
	if err != nil {
		return nil, fmt.Errorf("resolving model: %w", err)
	}

	cfg, err := s.loader.Load(ctx, conv.ProjectID, sel)
	if err != nil {
		return nil, fmt.Errorf("loading model config: %w", err)
	}

	client, err := s.newClient(sel.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", sel.Provider, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		conv:      *conv,
		selection: sel,
		client:    client,
		store:     s.store,
		pricing:   s.pricing,
		tools:     s.tools,
		prompt:    s.prompt,
		limits:    s.limits,
		now:       s.now,
		parent:    ctx,
		ctx:       sessCtx,
		cancel:    cancel,
		onDispose: s.remove,
		logger: s.logger.With(
			"conversation_id", conv.ID,
			"provider", string(sel.Provider),
			"model_id", sel.ModelID,
		),
	}

	s.mu.Lock()
	if prev, ok := s.sessions[conv.ID]; ok {
		prev.Stop()
		s.logger.Info("replaced running session", "conversation_id", conv.ID)
	}
	s.sessions[conv.ID] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	s.logger.Debug("session created",
		"conversation_id", conv.ID,
		"provider", string(sel.Provider),
		"model_id", sel.ModelID,
		"total_sessions", total,
	)
	return sess, nil
}

// remove drops sess if it is still the registered session for its
// conversation. A replaced session's late disposal leaves its successor.
func (s *Service) remove(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.sessions[sess.conv.ID]; ok && cur == sess {
		delete(s.sessions, sess.conv.ID)
	}
}

// Get returns the live session for a conversation.
func (s *Service) Get(conversationID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	return sess, ok
}

// Stop aborts the live session for a conversation. It reports whether one
// was running.
func (s *Service) Stop(conversationID string) bool {
	sess, ok := s.Get(conversationID)
	if ok {
		sess.Stop()
	}
	return ok
}

// Len returns the number of registered sessions.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
