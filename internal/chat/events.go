// ABOUTME: Closed sum type of stream events emitted during one turn
// ABOUTME: One variant per wire event kind; the encoder switches exhaustively

package chat

import "github.com/mkfischer/farfalle/internal/search"

// EventKind is the wire discriminant for a stream event.
type EventKind string

const (
	KindBeginStream    EventKind = "begin-stream"
	KindSearchResults  EventKind = "search-results"
	KindTextChunk      EventKind = "text-chunk"
	KindRelatedQueries EventKind = "related-queries"
	KindStreamEnd      EventKind = "stream-end"
	KindFinalResponse  EventKind = "final-response"
	KindError          EventKind = "error"

	// Agent events (pro search)
	KindAgentQueryPlan     EventKind = "agent-query-plan"
	KindAgentSearchQueries EventKind = "agent-search-queries"
	KindAgentReadResults   EventKind = "agent-read-results"
	KindAgentFinish        EventKind = "agent-finish"
	KindAgentFullResponse  EventKind = "agent-full-response"
)

// Event is one discriminated unit of incremental output. The set of
// implementations is closed; encoders switch over the concrete types.
type Event interface {
	Kind() EventKind
}

// BeginStream opens a turn's event stream.
type BeginStream struct {
	Query string `json:"query"`
}

func (BeginStream) Kind() EventKind { return KindBeginStream }

// SearchResults carries the retrieved documents and images for the turn.
type SearchResults struct {
	Results []search.Result `json:"results"`
	Images  []string        `json:"images"`
}

func (SearchResults) Kind() EventKind { return KindSearchResults }

// TextChunk is one incremental piece of generated prose.
type TextChunk struct {
	Text string `json:"text"`
}

func (TextChunk) Kind() EventKind { return KindTextChunk }

// RelatedQueries carries the three follow-up questions for the turn.
type RelatedQueries struct {
	RelatedQueries []string `json:"related_queries"`
}

func (RelatedQueries) Kind() EventKind { return KindRelatedQueries }

// FinalResponse carries the complete assistant text once generation is done.
type FinalResponse struct {
	Message string `json:"message"`
}

func (FinalResponse) Kind() EventKind { return KindFinalResponse }

// StreamEnd terminates a successful stream. ThreadID is nil when the turn
// was not persisted.
type StreamEnd struct {
	ThreadID *int64 `json:"thread_id"`
}

func (StreamEnd) Kind() EventKind { return KindStreamEnd }

// Error terminates a failed stream.
type Error struct {
	Detail string `json:"detail"`
}

func (Error) Kind() EventKind { return KindError }

// StepStatus marks the progress of one agent search step.
type StepStatus string

const (
	StepStatusDone    StepStatus = "done"
	StepStatusCurrent StepStatus = "current"
	StepStatusDefault StepStatus = "default"
)

// AgentSearchStep records one executed step of a pro search.
type AgentSearchStep struct {
	StepNumber int             `json:"step_number"`
	Step       string          `json:"step"`
	Queries    []string        `json:"queries"`
	Results    []search.Result `json:"results"`
	Status     StepStatus      `json:"status"`
}

// AgentFullResponse is the complete record of a pro search.
type AgentFullResponse struct {
	Steps        []string          `json:"steps"`
	StepsDetails []AgentSearchStep `json:"steps_details"`
}

// AgentQueryPlan carries the planned steps of a pro search.
type AgentQueryPlan struct {
	Steps []string `json:"steps"`
}

func (AgentQueryPlan) Kind() EventKind { return KindAgentQueryPlan }

// AgentSearchQueries carries the queries issued for one plan step.
type AgentSearchQueries struct {
	StepNumber int      `json:"step_number"`
	Queries    []string `json:"queries"`
}

func (AgentSearchQueries) Kind() EventKind { return KindAgentSearchQueries }

// AgentReadResults carries the documents retrieved for one plan step.
type AgentReadResults struct {
	StepNumber int             `json:"step_number"`
	Results    []search.Result `json:"results"`
}

func (AgentReadResults) Kind() EventKind { return KindAgentReadResults }

// AgentFinish marks the end of the agent sub-phase.
type AgentFinish struct{}

func (AgentFinish) Kind() EventKind { return KindAgentFinish }

// AgentFullResponseEvent carries the complete pro search record.
type AgentFullResponseEvent struct {
	Response AgentFullResponse `json:"response"`
}

func (AgentFullResponseEvent) Kind() EventKind { return KindAgentFullResponse }
