// ABOUTME: Retrieval collaborator types and provider selection
// ABOUTME: Defines the Provider interface and the Result shape owned by messages

package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is a single retrieved document.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// String renders the result in the form used to build LLM context.
func (r Result) String() string {
	return fmt.Sprintf("Title: %s\nURL: %s\n Summary: %s", r.Title, r.URL, r.Content)
}

// Response holds the documents and images returned for one query.
type Response struct {
	Results []Result `json:"results"`
	Images  []string `json:"images"`
}

// Provider performs one retrieval round-trip for a query.
type Provider interface {
	Search(ctx context.Context, query string) (Response, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string
	BraveKey string
	SearxURL string
}

// New returns the provider named in cfg.
func New(cfg Config) (Provider, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Provider)) {
	case "brave":
		if strings.TrimSpace(cfg.BraveKey) == "" {
			return nil, fmt.Errorf("missing brave api key")
		}
		return newBraveProvider(cfg.BraveKey), nil
	case "searxng", "":
		if strings.TrimSpace(cfg.SearxURL) == "" {
			return nil, fmt.Errorf("missing searxng base url")
		}
		return newSearxProvider(cfg.SearxURL), nil
	default:
		return nil, fmt.Errorf("unsupported search provider %q", cfg.Provider)
	}
}
