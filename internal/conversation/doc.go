// Package conversation is the request layer between a caller and the agent
// registry.
//
// # Service
//
//	svc := conversation.New(store, agentService, logger)
//	resp, err := svc.Start(ctx, conversation.ChatRequest{...})
//
// Start follows one rule: record first, then act. For each turn it
//
//  1. loads the conversation, or creates it with a title taken from the prompt
//  2. rejects users who do not own it (ErrNotOwner)
//  3. saves the user message
//  4. replays the stored history into a new agent session
//
// The returned stream announces the conversation only when it was created by
// this turn. Stop aborts the running turn; the partial reply is still saved
// with the "interrupted" stop reason.
package conversation
