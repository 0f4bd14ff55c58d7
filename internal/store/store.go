// ABOUTME: Store interface and data types for farfalle conversation persistence
// ABOUTME: Defines Thread, Message, Snapshot structs and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mkfischer/farfalle/internal/search"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDisabled is returned by read operations when persistence is administratively disabled
var ErrDisabled = errors.New("persistence is disabled")

// Role identifies the sender of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Thread represents one conversation. Immutable after creation except by
// appending messages.
type Thread struct {
	ID        int64
	ModelName string
	CreatedAt time.Time
}

// Message is a single committed message within a thread. Messages are
// append-only: once written they are never updated or reordered.
type Message struct {
	ID              int64
	ThreadID        int64
	Role            Role
	Content         string
	ParentMessageID *int64
	SearchResults   []search.Result
	ImageResults    []string
	RelatedQueries  []string
	// AgentResponse holds the serialized multi-step search record for
	// assistant messages produced in pro mode, nil otherwise.
	AgentResponse json.RawMessage
	CreatedAt     time.Time
}

// AppendParams carries everything needed to append one message to a thread.
// The parent message id is resolved by the store at append time.
type AppendParams struct {
	ThreadID       int64
	Role           Role
	Content        string
	SearchResults  []search.Result
	ImageResults   []string
	RelatedQueries []string
	AgentResponse  json.RawMessage
}

// Turn carries one user query plus its assistant answer for persistence.
// A nil ThreadID means "start a new thread".
type Turn struct {
	ThreadID       *int64
	UserText       string
	AssistantText  string
	Model          string
	SearchResults  []search.Result
	ImageResults   []string
	RelatedQueries []string
	AgentResponse  json.RawMessage
}

// Snapshot is a derived, read-only summary of a thread for history listings.
// It is computed from the thread's first two messages and never persisted.
type Snapshot struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Preview   string    `json:"preview"`
	ModelName string    `json:"model_name"`
}

// ThreadDetail is a thread with all of its messages hydrated.
type ThreadDetail struct {
	ThreadID int64
	Messages []*Message
}

// Store is the persistence contract for conversation threads.
type Store interface {
	// CreateThread allocates a new thread for the given model.
	CreateThread(ctx context.Context, modelName string) (*Thread, error)

	// AppendMessage appends one message to a thread, resolving the parent
	// message id from the most recently inserted message of the thread.
	// The message and its search results become visible atomically.
	AppendMessage(ctx context.Context, params AppendParams) (*Message, error)

	// SaveTurn persists a user/assistant message pair, creating the thread
	// first if needed. Returns the thread id, or 0 when persistence is
	// disabled and nothing was written.
	SaveTurn(ctx context.Context, turn Turn) (int64, error)

	// ListSnapshots returns one snapshot per thread holding more than one
	// message, newest thread first.
	ListSnapshots(ctx context.Context) ([]Snapshot, error)

	// GetThread returns all messages of a thread in insertion order.
	// Returns ErrNotFound if the thread has no messages.
	GetThread(ctx context.Context, threadID int64) (*ThreadDetail, error)

	// WipeAll deletes all search results, messages and threads in one
	// transaction. Partial wipes are never left behind.
	WipeAll(ctx context.Context) error

	Close() error
}
