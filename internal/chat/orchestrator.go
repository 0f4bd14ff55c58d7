// ABOUTME: Turn orchestrator: drives retrieval, generation, related queries
// ABOUTME: and persistence for one request, emitting typed stream events

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mkfischer/farfalle/internal/llm"
	"github.com/mkfischer/farfalle/internal/search"
	"github.com/mkfischer/farfalle/internal/store"
)

// ErrUnsupportedModel is returned before any event is emitted when the
// requested model is not in the supported set.
var ErrUnsupportedModel = errors.New("unsupported model")

// generationContextLimit bounds the search-result context for answer
// generation.
const generationContextLimit = 8000

// HistoryMessage is one prior message supplied by the client.
type HistoryMessage struct {
	Role    store.Role `json:"role"`
	Content string     `json:"content"`
}

// Request is one turn request.
type Request struct {
	ThreadID  *int64           `json:"thread_id,omitempty"`
	Query     string           `json:"query"`
	History   []HistoryMessage `json:"history"`
	Model     string           `json:"model"`
	ProSearch bool             `json:"pro_search"`
}

// EmitFunc delivers one event to the caller. It is the single suspension
// point per event: a non-nil error means the consumer is gone and the
// orchestration must stop without issuing further sub-calls.
type EmitFunc func(Event) error

// Orchestrator drives one request through retrieval, generation, related
// queries and persistence.
type Orchestrator struct {
	store    store.Store
	searcher search.Provider
	llmCfg   llm.Config
	logger   *slog.Logger

	// newClient is swapped in tests.
	newClient func(model string, cfg llm.Config) (llm.Client, error)
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(st store.Store, searcher search.Provider, llmCfg llm.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     st,
		searcher:  searcher,
		llmCfg:    llmCfg,
		logger:    logger.With("component", "chat"),
		newClient: llm.New,
	}
}

// Answer runs the turn state machine, emitting events in order:
//
//	begin-stream -> search-results -> [agent phase] -> text-chunk* ->
//	related-queries -> final-response -> stream-end
//
// The model is validated before anything is emitted. Any returned error is
// the caller's to convert into a terminal error event; on an emit failure
// (consumer disconnect) the turn is abandoned without persistence.
func (o *Orchestrator) Answer(ctx context.Context, req Request, emit EmitFunc) error {
	if !llm.IsSupported(req.Model) {
		return fmt.Errorf("%w: %q", ErrUnsupportedModel, req.Model)
	}
	client, err := o.newClient(req.Model, o.llmCfg)
	if err != nil {
		return err
	}

	requestID := uuid.New().String()
	logger := o.logger.With("request_id", requestID, "model", req.Model, "pro", req.ProSearch)
	logger.Info("answering query", "query", req.Query)

	if err := emit(BeginStream{Query: req.Query}); err != nil {
		return err
	}

	searchResp, err := o.searcher.Search(ctx, req.Query)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if err := emit(SearchResults{
		Results: searchResp.Results,
		Images:  emptyImages(searchResp.Images),
	}); err != nil {
		return err
	}

	results := searchResp.Results
	var agentResponse *AgentFullResponse
	if req.ProSearch {
		agentResults, resp, err := o.runProSearch(ctx, client, req.Query, results, emit)
		if err != nil {
			return err
		}
		results = agentResults
		agentResponse = resp
	}

	prompt := fmt.Sprintf(chatPrompt,
		buildContext(results, generationContextLimit),
		buildHistory(req.History),
		req.Query,
	)
	fullText, err := client.Stream(ctx, prompt, func(text string) error {
		return emit(TextChunk{Text: text})
	})
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	related, err := generateRelatedQueries(ctx, client, req.Query, results)
	if err != nil {
		return err
	}
	if err := emit(RelatedQueries{RelatedQueries: related}); err != nil {
		return err
	}

	if err := emit(FinalResponse{Message: fullText}); err != nil {
		return err
	}

	// Persistence happens exactly once, after the full assistant text is
	// known. A disconnect observed at any earlier emit never reaches here.
	var agentJSON json.RawMessage
	if agentResponse != nil {
		agentJSON, err = json.Marshal(agentResponse)
		if err != nil {
			return fmt.Errorf("encoding agent response: %w", err)
		}
	}
	threadID, err := o.store.SaveTurn(ctx, store.Turn{
		ThreadID:       req.ThreadID,
		UserText:       req.Query,
		AssistantText:  fullText,
		Model:          req.Model,
		SearchResults:  results,
		ImageResults:   emptyImages(searchResp.Images),
		RelatedQueries: related,
		AgentResponse:  agentJSON,
	})
	if err != nil {
		return fmt.Errorf("saving turn: %w", err)
	}

	end := StreamEnd{}
	if threadID != 0 {
		end.ThreadID = &threadID
	}
	logger.Info("turn complete", "thread_id", threadID, "answer_chars", len(fullText))
	return emit(end)
}

func emptyImages(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
