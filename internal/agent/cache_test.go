package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/llm"
)

func conversationMessages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "how are you", Cache: llm.CacheLong},
	}
}

func TestAnnotate_Anthropic(t *testing.T) {
	in := conversationMessages()
	out := Annotate(in, llm.ProviderAnthropic)

	require.Len(t, out, 4)
	assert.Equal(t, llm.CacheLong, out[0].Cache)
	assert.Equal(t, llm.CacheNone, out[1].Cache)
	assert.Equal(t, llm.CacheNone, out[2].Cache)
	assert.Equal(t, llm.CacheShort, out[3].Cache)

	assert.Equal(t, llm.CacheNone, in[0].Cache, "input not mutated")
	assert.Equal(t, llm.CacheLong, in[3].Cache, "input not mutated")
}

func TestAnnotate_Idempotent(t *testing.T) {
	once := Annotate(conversationMessages(), llm.ProviderAnthropic)
	twice := Annotate(once, llm.ProviderAnthropic)
	assert.Equal(t, once, twice)

	grown := append(append([]llm.Message(nil), once...), llm.Message{Role: llm.RoleTool, Content: "42"})
	moved := Annotate(grown, llm.ProviderAnthropic)
	assert.Equal(t, llm.CacheNone, moved[3].Cache, "old breakpoint cleared")
	assert.Equal(t, llm.CacheShort, moved[4].Cache)
}

func TestAnnotate_NoSystemMessage(t *testing.T) {
	out := Annotate([]llm.Message{
		{Role: llm.RoleUser, Content: "a"},
		{Role: llm.RoleUser, Content: "b"},
	}, llm.ProviderAnthropic)
	assert.Equal(t, llm.CacheNone, out[0].Cache)
	assert.Equal(t, llm.CacheShort, out[1].Cache)
}

func TestAnnotate_SingleMessage(t *testing.T) {
	sys := Annotate([]llm.Message{{Role: llm.RoleSystem, Content: "s"}}, llm.ProviderAnthropic)
	assert.Equal(t, llm.CacheLong, sys[0].Cache, "lone system message gets no short hint")

	user := Annotate([]llm.Message{{Role: llm.RoleUser, Content: "u"}}, llm.ProviderAnthropic)
	assert.Equal(t, llm.CacheNone, user[0].Cache)
}

func TestAnnotate_NoOp(t *testing.T) {
	assert.Empty(t, Annotate(nil, llm.ProviderAnthropic))

	in := conversationMessages()
	for _, p := range []llm.Provider{llm.ProviderOpenAI, llm.ProviderOpenRouter} {
		out := Annotate(in, p)
		require.Len(t, out, len(in))
		assert.Same(t, &in[0], &out[0], "unsupported providers get the input back")
		assert.Equal(t, llm.CacheLong, out[3].Cache, "hints are left untouched")
	}
}
