// ABOUTME: Brave web search provider
// ABOUTME: Calls the Brave Search REST API with a subscription token

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	braveEndpoint     = "https://api.search.brave.com/res/v1/web/search"
	braveMaxBodyBytes = 2 << 20 // 2 MiB
	braveResultCount  = 6
)

type braveProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func newBraveProvider(apiKey string) *braveProvider {
	return &braveProvider{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: braveEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (p *braveProvider) Search(ctx context.Context, query string) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, errors.New("missing query")
	}

	endpoint, err := url.Parse(p.endpoint)
	if err != nil {
		return Response{}, errors.New("invalid brave search endpoint")
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(braveResultCount))
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, braveMaxBodyBytes))
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("brave web search failed (status %d)", resp.StatusCode)
		}
		return Response{}, errors.New(msg)
	}

	var decoded braveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Response{}, errors.New("invalid brave web search response")
	}

	results := make([]Result, 0, len(decoded.Web.Results))
	for _, item := range decoded.Web.Results {
		u := strings.TrimSpace(item.URL)
		if u == "" {
			continue
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(item.Title),
			URL:     u,
			Content: strings.TrimSpace(item.Description),
		})
	}

	return Response{Results: results}, nil
}
