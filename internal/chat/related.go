// ABOUTME: Related-query generation: derives three follow-up questions
// ABOUTME: Uses the structured-completion capability of the LLM collaborator

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkfischer/farfalle/internal/llm"
	"github.com/mkfischer/farfalle/internal/search"
)

// relatedContextLimit bounds the search-result context fed to the model.
const relatedContextLimit = 4000

var relatedQueriesSchema = llm.Schema{
	Name:        "related_queries",
	Description: "Exactly three follow-up questions related to the original query",
	Raw: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"related_questions": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 3,
				"maxItems": 3,
			},
		},
		"required":             []string{"related_questions"},
		"additionalProperties": false,
	},
}

type relatedQueriesResult struct {
	RelatedQuestions []string `json:"related_questions"`
}

// generateRelatedQueries derives exactly three follow-up questions from the
// query and its search results. Returned strings are lower-cased with all
// question marks removed. The LLM client handles its own retries; a result
// that still is not exactly three strings is a generation failure.
func generateRelatedQueries(ctx context.Context, client llm.Client, query string, results []search.Result) ([]string, error) {
	resultContext := buildContext(results, relatedContextLimit)
	prompt := fmt.Sprintf(relatedQueriesPrompt, query, resultContext)

	var out relatedQueriesResult
	if err := client.StructuredComplete(ctx, prompt, relatedQueriesSchema, &out); err != nil {
		return nil, fmt.Errorf("generating related queries: %w", err)
	}
	if len(out.RelatedQuestions) != 3 {
		return nil, fmt.Errorf("generating related queries: %w: got %d questions, want 3",
			llm.ErrBadStructure, len(out.RelatedQuestions))
	}

	related := make([]string, len(out.RelatedQuestions))
	for i, q := range out.RelatedQuestions {
		related[i] = strings.ReplaceAll(strings.ToLower(q), "?", "")
	}
	return related, nil
}
