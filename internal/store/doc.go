// Package store provides the append-only conversation thread store.
//
// # Architecture
//
// The package is interface-driven: Store defines the persistence contract,
// SQLiteStore implements it, and NoopStore stands in when persistence is
// administratively disabled (DB_ENABLED=false).
//
// # Data Models
//
//   - Thread: one conversation, immutable except by appending messages
//   - Message: a committed user or assistant message; append-only, never
//     updated or reordered
//   - search.Result rows owned by exactly one message, written atomically
//     with it
//   - Snapshot: derived summary of a thread's first two messages for
//     history listings; never persisted
//
// # Invariants
//
// The first message of a thread is always user-authored, and every
// assistant message's parent is the immediately preceding message of its
// thread. AppendMessage resolves the parent and inserts inside a single
// transaction under a store-level mutex, so concurrent appends cannot
// break the chain.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: thread has no messages (or does not exist)
//   - ErrDisabled: persistence is administratively disabled
//
// All methods accept context.Context for cancellation support.
package store
