// ABOUTME: Prompt templates for generation, related queries, and pro search
// ABOUTME: Context blocks are assembled from formatted search results

package chat

import (
	"fmt"
	"strings"

	"github.com/mkfischer/farfalle/internal/search"
	"github.com/mkfischer/farfalle/internal/store"
)

const chatPrompt = `Generate a comprehensive and informative answer for the given question using only the provided web search results.

You must cite your answer using [number] notation, where the number refers to the search result's position in the context below. Cite the most relevant results. Do not mention the search results directly; write as if the knowledge were your own. Use an unbiased, journalistic tone.

<context>
%s
</context>

%s

Question: %s
Answer:`

const relatedQueriesPrompt = `Given a question and the search results for that question, generate exactly 3 follow-up questions the user might ask next. Keep each question short and self-contained.

Original question: %s

<search_results>
%s
</search_results>`

const queryPlanPrompt = `You are an expert research planner. Break the question below into a short ordered plan of research steps (at most %d). Each step is a concise description of what to find out. Later steps may build on earlier ones.

Question: %s`

const stepQueriesPrompt = `You are executing one step of a research plan. Write up to %d web search queries that together accomplish the step. Queries must be plain search-engine queries, not questions to a person.

Overall question: %s
Current step: %s

Information gathered so far:
<context>
%s
</context>`

// buildContext concatenates the formatted search results, truncated to
// limit bytes. Truncation may split a result mid-content.
func buildContext(results []search.Result, limit int) string {
	formatted := make([]string, 0, len(results))
	for _, r := range results {
		formatted = append(formatted, r.String())
	}
	context := strings.Join(formatted, "\n\n")
	if limit > 0 && len(context) > limit {
		context = context[:limit]
	}
	return context
}

// buildHistory renders prior turns into a block for the generation prompt.
// Returns an empty string when there is no history.
func buildHistory(history []HistoryMessage) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<history>\n")
	for _, msg := range history {
		switch msg.Role {
		case store.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		case store.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
		}
	}
	b.WriteString("</history>")
	return b.String()
}
