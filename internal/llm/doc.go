// Package llm provides the model-facing side of parley: provider-neutral
// message types, provider clients, and the tool-use loop that drives them.
//
// # Providers
//
// The supported providers form a closed set (see [Provider]). Per-provider
// behavior such as the default model, credential environment variable, and
// cache-hint support is looked up in a single table rather than spread
// across types.
//
//   - Anthropic: raw HTTP + SSE against the Messages API. Cache hints are
//     rendered as ephemeral cache_control blocks with a 5m or 1h TTL.
//   - OpenAI and OpenRouter: chat completions via go-openai. Caching is
//     automatic on these providers, so hints are ignored.
//
// # Tool loop
//
// [RunLoop] calls a [Client], executes any tool calls the model makes, and
// feeds results back until the model answers in plain text or the step limit
// is reached. A PrepareStep hook can rewrite the message list before each
// step, and cancelling the context aborts the run at the next network read.
//
// # Usage normalization
//
// Every client reports [Usage] with InputTokens including cached input and
// OutputTokens including reasoning tokens, regardless of how the vendor
// splits them on the wire.
package llm
