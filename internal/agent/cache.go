// ABOUTME: Prompt-cache breakpoint annotation for providers that support it
// ABOUTME: A leading system message gets a long-lived hint, the last message a short one

package agent

import "github.com/2389/parley/internal/llm"

// Annotate marks prompt-cache breakpoints for providers that honor them: a
// long-lived hint on a leading system message and a short-lived hint on the
// last message. Existing hints are cleared first, so re-annotating a grown
// history moves the short breakpoint forward. The input is never mutated.
func Annotate(messages []llm.Message, p llm.Provider) []llm.Message {
	if len(messages) == 0 || !p.SupportsCacheHints() {
		return messages
	}

	out := make([]llm.Message, len(messages))
	copy(out, messages)
	for i := range out {
		out[i].Cache = llm.CacheNone
	}

	if out[0].Role == llm.RoleSystem {
		out[0].Cache = llm.CacheLong
	}
	if n := len(out); n > 1 {
		out[n-1].Cache = llm.CacheShort
	}
	return out
}
