// ABOUTME: Tests for search provider selection and the HTTP providers
// ABOUTME: Providers are exercised against httptest servers

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_ProviderSelection(t *testing.T) {
	p, err := New(Config{Provider: "brave", BraveKey: "key"})
	if err != nil {
		t.Fatalf("New(brave) failed: %v", err)
	}
	if _, ok := p.(*braveProvider); !ok {
		t.Errorf("New(brave) returned %T", p)
	}

	p, err = New(Config{Provider: "searxng", SearxURL: "http://localhost:8080"})
	if err != nil {
		t.Fatalf("New(searxng) failed: %v", err)
	}
	if _, ok := p.(*searxProvider); !ok {
		t.Errorf("New(searxng) returned %T", p)
	}

	// Empty provider defaults to searxng.
	if _, err := New(Config{SearxURL: "http://localhost:8080"}); err != nil {
		t.Errorf("New with empty provider failed: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{Provider: "brave"}); err == nil {
		t.Error("expected error for brave without api key")
	}
	if _, err := New(Config{Provider: "searxng"}); err == nil {
		t.Error("expected error for searxng without base url")
	}
	if _, err := New(Config{Provider: "bing"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestResultString(t *testing.T) {
	r := Result{Title: "Go", URL: "https://go.dev", Content: "The Go language"}
	want := "Title: Go\nURL: https://go.dev\n Summary: The Go language"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "test-key" {
			t.Errorf("subscription token = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "golang" {
			t.Errorf("query = %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "6" {
			t.Errorf("count = %q", got)
		}
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"Go","url":"https://go.dev","description":"The Go language"},
			{"title":"no url","url":"","description":"dropped"},
			{"title":"Docs","url":"https://go.dev/doc","description":"Documentation"}
		]}}`)
	}))
	defer srv.Close()

	p := newBraveProvider("test-key")
	p.endpoint = srv.URL

	resp, err := p.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2 (empty url dropped)", len(resp.Results))
	}
	if resp.Results[0].Title != "Go" || resp.Results[0].Content != "The Go language" {
		t.Errorf("unexpected first result: %+v", resp.Results[0])
	}
}

func TestBraveSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "subscription expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newBraveProvider("test-key")
	p.endpoint = srv.URL

	_, err := p.Search(context.Background(), "golang")
	if err == nil || !strings.Contains(err.Error(), "subscription expired") {
		t.Errorf("err = %v, want upstream message", err)
	}
}

func TestBraveSearch_EmptyQuery(t *testing.T) {
	p := newBraveProvider("test-key")
	if _, err := p.Search(context.Background(), "  "); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestSearxSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		if got := r.URL.Query().Get("categories"); got != "general,images" {
			t.Errorf("categories = %q", got)
		}
		fmt.Fprint(w, `{"results":[
			{"title":"Go","url":"https://go.dev","content":"The Go language","category":"general"},
			{"title":"Gopher","url":"https://go.dev/gopher","img_src":"https://go.dev/gopher.png","category":"images"},
			{"title":"Docs","url":"https://go.dev/doc","content":"Documentation","category":"general"}
		]}`)
	}))
	defer srv.Close()

	p := newSearxProvider(srv.URL)

	resp, err := p.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if len(resp.Images) != 1 || resp.Images[0] != "https://go.dev/gopher.png" {
		t.Errorf("images = %v", resp.Images)
	}
}

func TestSearxSearch_CapsResultsAndImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sb strings.Builder
		sb.WriteString(`{"results":[`)
		for i := 0; i < 10; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, `{"title":"r%d","url":"https://example.com/%d","content":"c","category":"general"}`, i, i)
		}
		for i := 0; i < 8; i++ {
			fmt.Fprintf(&sb, `,{"title":"i%d","url":"https://example.com/img%d","img_src":"https://example.com/%d.png","category":"images"}`, i, i, i)
		}
		sb.WriteString(`]}`)
		fmt.Fprint(w, sb.String())
	}))
	defer srv.Close()

	p := newSearxProvider(srv.URL)

	resp, err := p.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != searxMaxResults {
		t.Errorf("got %d results, want %d", len(resp.Results), searxMaxResults)
	}
	if len(resp.Images) != searxMaxImages {
		t.Errorf("got %d images, want %d", len(resp.Images), searxMaxImages)
	}
}

func TestSearxSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newSearxProvider(srv.URL)
	if _, err := p.Search(context.Background(), "golang"); err == nil {
		t.Error("expected error for upstream failure")
	}
}
