// ABOUTME: SearxNG search provider
// ABOUTME: Queries a self-hosted SearxNG instance's JSON API for results and images

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	searxMaxBodyBytes = 4 << 20
	searxMaxResults   = 6
	searxMaxImages    = 4
)

type searxProvider struct {
	baseURL string
	client  *http.Client
}

func newSearxProvider(baseURL string) *searxProvider {
	return &searxProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type searxResponse struct {
	Results []struct {
		Title    string `json:"title"`
		URL      string `json:"url"`
		Content  string `json:"content"`
		ImgSrc   string `json:"img_src"`
		Category string `json:"category"`
	} `json:"results"`
}

func (p *searxProvider) Search(ctx context.Context, query string) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, errors.New("missing query")
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&categories=general,images",
		p.baseURL, url.QueryEscape(query))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, searxMaxBodyBytes))
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("searxng search failed (status %d)", resp.StatusCode)
	}

	var decoded searxResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Response{}, errors.New("invalid searxng response")
	}

	var out Response
	for _, item := range decoded.Results {
		if item.ImgSrc != "" || item.Category == "images" {
			if len(out.Images) < searxMaxImages && item.ImgSrc != "" {
				out.Images = append(out.Images, item.ImgSrc)
			}
			continue
		}
		if len(out.Results) >= searxMaxResults {
			continue
		}
		u := strings.TrimSpace(item.URL)
		if u == "" {
			continue
		}
		out.Results = append(out.Results, Result{
			Title:   strings.TrimSpace(item.Title),
			URL:     u,
			Content: strings.TrimSpace(item.Content),
		})
	}

	return out, nil
}
