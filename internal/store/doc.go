// Package store provides persistent storage for parley using SQLite.
//
// # Architecture
//
// The store package splits persistence into small interfaces:
//
//   - ConversationStore: conversations owned by a user within a project
//   - MessageStore: message upserts carrying stop reason, error, provider, and model
//   - LLMConfigStore: per-project provider credentials
//   - UsageStore: per-message token usage and cost
//
// Store embeds all of them. SQLiteStore implements Store in a single struct.
//
// # Credentials
//
// Provider API keys are sealed with XChaCha20-Poly1305 when the store is
// opened WithSealer. Rows written without a sealer stay readable after one
// is configured.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Errors
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: conversation ID already taken
//
// # Testing
//
// NewMockStore returns an in-memory Store that records every UpsertMessage
// call and can be told to fail config reads or upserts.
package store
