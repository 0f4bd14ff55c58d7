// ABOUTME: Package documentation for the turn orchestration layer
// ABOUTME: Describes the event state machine and its delivery contract

// Package chat orchestrates one answer turn: web retrieval, optional
// multi-step pro search, streamed answer generation, related-query
// generation, and persistence of the completed turn.
//
// # Event Stream
//
// Answer emits a fixed sequence of typed events through an EmitFunc:
//
//	begin-stream
//	search-results
//	(pro search only: agent-query-plan, then per step
//	 agent-search-queries and agent-read-results, then agent-finish
//	 and agent-full-response)
//	text-chunk (repeated)
//	related-queries
//	final-response
//	stream-end
//
// The EmitFunc is the only delivery channel. When it returns an error the
// consumer is considered gone: the orchestrator stops immediately, makes no
// further model or search calls, and does not persist the turn. Persistence
// happens exactly once, between final-response and stream-end, so a turn is
// saved only if its full answer was delivered.
//
// # Validation
//
// The requested model is validated before any event is emitted. Callers can
// therefore translate ErrUnsupportedModel into a plain request error rather
// than a mid-stream failure.
package chat
