// ABOUTME: Pro search sub-phase: plans research steps, runs searches per
// ABOUTME: step, and accumulates deduplicated results for generation

package chat

import (
	"context"
	"fmt"

	"github.com/mkfischer/farfalle/internal/llm"
	"github.com/mkfischer/farfalle/internal/search"
)

const (
	maxPlanSteps       = 4
	maxQueriesPerStep  = 3
	stepContextLimit   = 4000
	maxAccumulatedDocs = 24
)

var queryPlanSchema = llm.Schema{
	Name:        "query_plan",
	Description: "An ordered plan of research steps for answering the question",
	Raw: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"steps": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
				"maxItems": maxPlanSteps,
			},
		},
		"required":             []string{"steps"},
		"additionalProperties": false,
	},
}

var stepQueriesSchema = llm.Schema{
	Name:        "search_queries",
	Description: "Web search queries that accomplish the current research step",
	Raw: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"queries": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
				"maxItems": maxQueriesPerStep,
			},
		},
		"required":             []string{"queries"},
		"additionalProperties": false,
	},
}

type queryPlanResult struct {
	Steps []string `json:"steps"`
}

type stepQueriesResult struct {
	Queries []string `json:"queries"`
}

// runProSearch plans research steps for the query, executes each step's
// searches, and emits agent events as it goes. It returns the accumulated,
// URL-deduplicated results (seeded with the initial search results) and the
// full record of the phase for persistence.
func (o *Orchestrator) runProSearch(ctx context.Context, client llm.Client, query string, initial []search.Result, emit EmitFunc) ([]search.Result, *AgentFullResponse, error) {
	prompt := fmt.Sprintf(queryPlanPrompt, maxPlanSteps, query)
	var plan queryPlanResult
	if err := client.StructuredComplete(ctx, prompt, queryPlanSchema, &plan); err != nil {
		return nil, nil, fmt.Errorf("planning research steps: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, nil, fmt.Errorf("planning research steps: %w: empty plan", llm.ErrBadStructure)
	}
	if len(plan.Steps) > maxPlanSteps {
		plan.Steps = plan.Steps[:maxPlanSteps]
	}

	if err := emit(AgentQueryPlan{Steps: plan.Steps}); err != nil {
		return nil, nil, err
	}

	accumulated := make([]search.Result, 0, maxAccumulatedDocs)
	seen := make(map[string]bool)
	for _, r := range initial {
		if !seen[r.URL] {
			seen[r.URL] = true
			accumulated = append(accumulated, r)
		}
	}

	details := make([]AgentSearchStep, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		stepNumber := i + 1

		queries, err := o.planStepQueries(ctx, client, query, step, accumulated)
		if err != nil {
			return nil, nil, err
		}
		if err := emit(AgentSearchQueries{StepNumber: stepNumber, Queries: queries}); err != nil {
			return nil, nil, err
		}

		stepResults := make([]search.Result, 0, maxQueriesPerStep*6)
		for _, q := range queries {
			resp, err := o.searcher.Search(ctx, q)
			if err != nil {
				return nil, nil, fmt.Errorf("searching step %d: %w", stepNumber, err)
			}
			for _, r := range resp.Results {
				if seen[r.URL] {
					continue
				}
				seen[r.URL] = true
				stepResults = append(stepResults, r)
				if len(accumulated) < maxAccumulatedDocs {
					accumulated = append(accumulated, r)
				}
			}
		}
		if err := emit(AgentReadResults{StepNumber: stepNumber, Results: stepResults}); err != nil {
			return nil, nil, err
		}

		details = append(details, AgentSearchStep{
			StepNumber: stepNumber,
			Step:       step,
			Queries:    queries,
			Results:    stepResults,
			Status:     StepStatusDone,
		})
	}

	if err := emit(AgentFinish{}); err != nil {
		return nil, nil, err
	}

	response := &AgentFullResponse{Steps: plan.Steps, StepsDetails: details}
	if err := emit(AgentFullResponseEvent{Response: *response}); err != nil {
		return nil, nil, err
	}
	return accumulated, response, nil
}

func (o *Orchestrator) planStepQueries(ctx context.Context, client llm.Client, query, step string, gathered []search.Result) ([]string, error) {
	prompt := fmt.Sprintf(stepQueriesPrompt, maxQueriesPerStep, query, step,
		buildContext(gathered, stepContextLimit))
	var out stepQueriesResult
	if err := client.StructuredComplete(ctx, prompt, stepQueriesSchema, &out); err != nil {
		return nil, fmt.Errorf("planning step queries: %w", err)
	}
	if len(out.Queries) == 0 {
		return nil, fmt.Errorf("planning step queries: %w: no queries", llm.ErrBadStructure)
	}
	if len(out.Queries) > maxQueriesPerStep {
		out.Queries = out.Queries[:maxQueriesPerStep]
	}
	return out.Queries, nil
}
