// Package agent runs LLM agents on behalf of conversations.
//
// # Overview
//
// A Service keeps at most one live Session per conversation. Create resolves
// which provider and model to use, loads credentials, builds a client, and
// installs the new session, stopping whichever session was running for the
// same conversation:
//
//	svc := agent.NewService(store, env, agent.WithLogger(logger))
//	sess, err := svc.Create(ctx, conv, nil)
//	for ev := range sess.Stream(history, agent.StreamOptions{}) {
//	    ...
//	}
//
// # Model Resolution
//
// The Resolver picks a model in order: an explicit selection, the first
// stored project config whose provider is known, then the first provider
// with credentials in the environment. ErrNoModelConfigured is returned when
// none applies. The ConfigLoader then prefers the stored config over
// environment credentials; the two are never blended.
//
// # Sessions
//
// A session runs once. Stream emits text deltas, tool calls, and tool
// results, then exactly one EventFinish or EventError. The assistant reply is
// persisted with its usage and cost after the terminal event, even when the
// run was stopped. Generate returns the result without persisting.
//
// Stop reasons are the provider's finish reason, "interrupted" for a stopped
// run, or "error" for a failed one.
//
// # Prompt Caching
//
// For providers that support cache hints, Annotate marks the system message
// for long-lived caching and the newest message for short-lived caching. The
// hints move forward on every tool-loop step.
package agent
