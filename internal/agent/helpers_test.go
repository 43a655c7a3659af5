package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/llm"
	"github.com/2389/parley/internal/store"
)

type fakeEnv struct {
	creds  map[llm.Provider]llm.ClientConfig
	models map[llm.Provider]string
}

func (e fakeEnv) DefaultModel(p llm.Provider) string {
	if m, ok := e.models[p]; ok {
		return m
	}
	return p.DefaultModel()
}

func (e fakeEnv) Credential(p llm.Provider) (llm.ClientConfig, bool) {
	c, ok := e.creds[p]
	return c, ok
}

func (e fakeEnv) ConfiguredProviders() []llm.Provider {
	var out []llm.Provider
	for _, p := range llm.Providers() {
		if _, ok := e.creds[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

type factoryCall struct {
	provider llm.Provider
	config   llm.ClientConfig
}

// recordingFactory hands out one client and remembers what it was asked for.
type recordingFactory struct {
	mu     sync.Mutex
	client llm.Client
	err    error
	calls  []factoryCall
}

func (f *recordingFactory) build(p llm.Provider, cfg llm.ClientConfig) (llm.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, factoryCall{provider: p, config: cfg})
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func (f *recordingFactory) recorded() []factoryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]factoryCall(nil), f.calls...)
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)

func newTestService(t *testing.T, st Store, env Environment, client llm.Client, opts ...Option) (*Service, *recordingFactory) {
	t.Helper()
	factory := &recordingFactory{client: client}
	opts = append([]Option{
		WithClientFactory(factory.build),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	return NewService(st, env, opts...), factory
}

func testConversation(id string) *store.Conversation {
	return &store.Conversation{
		ID:        id,
		UserID:    "u1",
		ProjectID: "p1",
		Title:     "Sales questions",
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
}

func openAISelection() *ModelSelection {
	return &ModelSelection{Provider: llm.ProviderOpenAI, ModelID: "gpt-4.1"}
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
			return nil
		}
	}
}

func terminalOf(t *testing.T, events []StreamEvent) StreamEvent {
	t.Helper()
	var terminals []StreamEvent
	for _, ev := range events {
		if ev.Terminal() {
			terminals = append(terminals, ev)
		}
	}
	require.Len(t, terminals, 1, "exactly one terminal event")
	require.True(t, events[len(events)-1].Terminal(), "terminal event is last")
	return terminals[0]
}

func seedOpenAIConfig(t *testing.T, st *store.MockStore) {
	t.Helper()
	require.NoError(t, st.UpsertProjectLLMConfig(context.Background(), &store.LLMConfig{
		ProjectID: "p1", Provider: "openai", APIKey: "sk-stored",
	}))
}
