// ABOUTME: One live agent run bound to a conversation, a model selection, and a client
// ABOUTME: Streams or generates once, persists the reply, and disposes exactly once

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/usage"
)

// ErrSessionUsed is returned when Stream or Generate runs on a session that
// already ran.
var ErrSessionUsed = errors.New("session already used")

// streamBuffer lets a slow reader fall a little behind the producer.
const streamBuffer = 32

// Session is a single agent run for one conversation.
type Session struct {
	conv      store.Conversation
	selection ModelSelection
	client    llm.Client
	store     Store
	pricing   usage.Pricing
	tools     []llm.Tool
	prompt    *Instructions
	limits    limits
	logger    *slog.Logger
	now       func() time.Time

	// parent is the caller's context; its end means the reader is gone.
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	used        atomic.Bool
	disposeOnce sync.Once
	onDispose   func(*Session)
}

type limits struct {
	maxSteps       int
	maxTokens      int
	persistTimeout time.Duration
	terminalGrace  time.Duration
}

// GenerateResult is the outcome of a non-streaming run.
type GenerateResult struct {
	Text             string
	Usage            usage.TokenUsage
	Cost             usage.TokenCost
	FinishReason     string
	Duration         time.Duration
	ResponseMessages []llm.Message
	Steps            []llm.Step
}

// ToolCallCount is the number of tool calls across all steps.
func (r *GenerateResult) ToolCallCount() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.ToolCalls)
	}
	return n
}

// ConversationID returns the conversation this session serves.
func (s *Session) ConversationID() string {
	return s.conv.ID
}

// ModelID returns the bound model id.
func (s *Session) ModelID() string {
	return s.selection.ModelID
}

// Selection returns the bound provider and model.
func (s *Session) Selection() ModelSelection {
	return s.selection
}

// CheckIsUserOwner reports whether userID owns the session's conversation.
func (s *Session) CheckIsUserOwner(userID string) bool {
	return s.conv.UserID == userID
}

// Stop aborts the run in flight. It is safe to call repeatedly and from any
// goroutine. The run itself finishes the stream and disposes.
func (s *Session) Stop() {
	s.cancel()
}

func (s *Session) dispose() {
	s.disposeOnce.Do(func() {
		s.cancel()
		if s.onDispose != nil {
			s.onDispose(s)
		}
		s.logger.Debug("session disposed")
	})
}

// Stream runs the agent and returns its events. The reply is persisted and
// the session disposed before the terminal event is sent, then the channel
// is closed. Callers should drain it; once the caller's context ends an
// unread terminal event is dropped after a short grace period.
func (s *Session) Stream(messages []UIMessage, opts StreamOptions) <-chan StreamEvent {
	out := make(chan StreamEvent, streamBuffer)

	if !s.used.CompareAndSwap(false, true) {
		out <- StreamEvent{Type: EventError, Error: ErrSessionUsed.Error()}
		close(out)
		return out
	}

	go s.runStream(messages, opts, out)
	return out
}

func (s *Session) runStream(messages []UIMessage, opts StreamOptions, out chan<- StreamEvent) {
	defer close(out)
	defer s.dispose() // no-op on the normal path

	// Deltas are dropped once the run is aborted; the terminal event is not.
	send := func(ev StreamEvent) {
		select {
		case out <- ev:
		case <-s.ctx.Done():
		}
	}

	if opts.AnnounceConversation {
		send(StreamEvent{Type: EventConversation, Conversation: &ConversationInfo{
			ID:        s.conv.ID,
			Title:     s.conv.Title,
			CreatedAt: s.conv.CreatedAt,
			UpdatedAt: s.conv.UpdatedAt,
		}})
	}

	var reply partsBuilder
	result, err := s.run(messages, func(ev llm.StreamEvent) {
		switch ev.Kind {
		case llm.KindToken:
			reply.text(ev.Token)
			send(StreamEvent{Type: EventTextDelta, Text: ev.Token})
		case llm.KindToolCallStart:
			reply.toolCall(*ev.ToolCall)
			send(StreamEvent{Type: EventToolCall, ToolCall: ev.ToolCall})
		case llm.KindToolCallDone:
			reply.toolResult(*ev.ToolResult)
			send(StreamEvent{Type: EventToolResult, ToolCall: ev.ToolCall, ToolResult: ev.ToolResult})
		}
	})

	stopReason, errText := s.outcome(result, err)
	var raw llm.Usage
	if result != nil {
		raw = result.Usage
	}
	u, c := s.pricing.Record(string(s.selection.Provider), s.selection.ModelID, raw)
	messageID := uuid.New().String()

	terminal := StreamEvent{
		Type:         EventFinish,
		FinishReason: stopReason,
		MessageID:    messageID,
		Usage:        &u,
		Cost:         &c,
	}
	if errText != "" {
		terminal.Type = EventError
		terminal.Error = errText
	}

	s.persist(&store.Message{
		ID:             messageID,
		ConversationID: s.conv.ID,
		Role:           string(llm.RoleAssistant),
		Parts:          reply.parts,
	}, store.MessageMeta{
		ConversationID: s.conv.ID,
		StopReason:     stopReason,
		Error:          errText,
		Usage:          &u,
		Cost:           &c,
		LLMProvider:    string(s.selection.Provider),
		LLMModelID:     s.selection.ModelID,
	})
	s.dispose()
	s.sendTerminal(out, terminal)
}

// sendTerminal delivers the terminal event. A live reader always gets it;
// once the caller's context is done the reader gets a grace period to
// drain what is buffered.
func (s *Session) sendTerminal(out chan<- StreamEvent, ev StreamEvent) {
	select {
	case out <- ev:
		return
	case <-s.parent.Done():
	}

	timer := time.NewTimer(s.limits.terminalGrace)
	defer timer.Stop()
	select {
	case out <- ev:
	case <-timer.C:
		s.logger.Warn("stream reader gone, terminal event dropped",
			"message_id", ev.MessageID,
			"stop_reason", ev.FinishReason)
	}
}

// outcome maps a finished run to its stop reason and client-visible error.
// An aborted run is interrupted, never an error. A failed run keeps the
// finish reason of its last completed step when there is one.
func (s *Session) outcome(result *llm.Result, err error) (stopReason, errText string) {
	switch {
	case s.ctx.Err() != nil:
		return StopInterrupted, ""
	case err != nil && result != nil && result.FinishReason != "":
		return string(result.FinishReason), err.Error()
	case err != nil:
		return StopError, err.Error()
	case result == nil || result.FinishReason == "":
		return string(llm.FinishUnknown), ""
	default:
		return string(result.FinishReason), ""
	}
}

// persist writes the reply on a context detached from the session so an
// aborted run is still recorded. Failures are logged only.
func (s *Session) persist(msg *store.Message, meta store.MessageMeta) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.limits.persistTimeout)
	defer cancel()

	if err := s.store.UpsertMessage(ctx, msg, meta); err != nil {
		s.logger.Error("failed to persist assistant message",
			"message_id", msg.ID,
			"stop_reason", meta.StopReason,
			"error", err,
		)
		return
	}
	s.logger.Info("assistant message persisted",
		"message_id", msg.ID,
		"stop_reason", meta.StopReason,
		"total_tokens", meta.Usage.TotalTokens,
		"cost", meta.Cost.TotalCost.String(),
	)
}

// Generate runs the agent to completion without streaming or persisting.
func (s *Session) Generate(messages []UIMessage) (*GenerateResult, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, ErrSessionUsed
	}
	defer s.dispose()

	start := s.now()
	result, err := s.run(messages, nil)
	if err != nil {
		return nil, fmt.Errorf("generating with %s: %w", s.selection, err)
	}

	u, c := s.pricing.Record(string(s.selection.Provider), s.selection.ModelID, result.Usage)
	return &GenerateResult{
		Text:             result.Text,
		Usage:            u,
		Cost:             c,
		FinishReason:     string(result.FinishReason),
		Duration:         s.now().Sub(start),
		ResponseMessages: result.ResponseMessages,
		Steps:            result.Steps,
	}, nil
}

// run builds the model messages and drives the tool loop. onEvent enables
// streaming when non-nil.
func (s *Session) run(messages []UIMessage, onEvent llm.StreamCallback) (*llm.Result, error) {
	system, err := s.prompt.Render(InstructionData{
		ProjectID: s.conv.ProjectID,
		Title:     s.conv.Title,
		Date:      s.now().Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}

	msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: system}}, ToLLMMessages(messages)...)
	provider := s.selection.Provider

	s.logger.Debug("starting run", "messages", len(msgs), "streaming", onEvent != nil)

	return llm.RunLoop(s.ctx, llm.Call{
		Client:    s.client,
		Model:     s.selection.ModelID,
		Messages:  Annotate(msgs, provider),
		Tools:     s.tools,
		MaxSteps:  s.limits.maxSteps,
		MaxTokens: s.limits.maxTokens,
		PrepareStep: func(step int, history []llm.Message) []llm.Message {
			if step == 0 {
				return history
			}
			return Annotate(history, provider)
		},
		OnEvent: onEvent,
	})
}
