// ABOUTME: Tests for the HTTP API handlers and SSE stream framing
// ABOUTME: Uses a scripted Answerer and in-memory store fakes

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkfischer/farfalle/internal/chat"
	"github.com/mkfischer/farfalle/internal/search"
	"github.com/mkfischer/farfalle/internal/store"
)

// scriptedAnswerer emits a fixed event sequence, or fails with err.
type scriptedAnswerer struct {
	events []chat.Event
	err    error
}

func (a *scriptedAnswerer) Answer(ctx context.Context, req chat.Request, emit chat.EmitFunc) error {
	if a.err != nil {
		return a.err
	}
	for _, e := range a.events {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

// historyStore serves scripted history data.
type historyStore struct {
	store.NoopStore
	snapshots []store.Snapshot
	thread    *store.ThreadDetail
	wiped     bool
}

func (h *historyStore) ListSnapshots(ctx context.Context) ([]store.Snapshot, error) {
	return h.snapshots, nil
}

func (h *historyStore) GetThread(ctx context.Context, threadID int64) (*store.ThreadDetail, error) {
	if h.thread == nil || h.thread.ThreadID != threadID {
		return nil, store.ErrNotFound
	}
	return h.thread, nil
}

func (h *historyStore) WipeAll(ctx context.Context) error {
	h.wiped = true
	return nil
}

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func newTestServer(answerer Answerer, st store.Store, limiter Limiter) *Server {
	if answerer == nil {
		answerer = &scriptedAnswerer{}
	}
	if st == nil {
		st = &historyStore{}
	}
	return NewServer(answerer, st, limiter, nil)
}

func postChat(t *testing.T, s *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handleChat(rec, req)
	return rec
}

func TestHandleChat_StreamsEvents(t *testing.T) {
	threadID := int64(5)
	answerer := &scriptedAnswerer{events: []chat.Event{
		chat.BeginStream{Query: "what is go"},
		chat.SearchResults{Results: []search.Result{{Title: "Go", URL: "https://go.dev", Content: "lang"}}, Images: []string{}},
		chat.TextChunk{Text: "Go is"},
		chat.TextChunk{Text: " a language"},
		chat.RelatedQueries{RelatedQueries: []string{"a", "b", "c"}},
		chat.FinalResponse{Message: "Go is a language"},
		chat.StreamEnd{ThreadID: &threadID},
	}}
	s := newTestServer(answerer, nil, nil)

	rec := postChat(t, s, chat.Request{Query: "what is go", Model: "gpt-4o"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	for _, kind := range []string{
		"begin-stream", "search-results", "text-chunk",
		"related-queries", "final-response", "stream-end",
	} {
		assert.Contains(t, body, fmt.Sprintf("event: %s\n", kind))
		assert.Contains(t, body, fmt.Sprintf(`"event":%q`, kind))
	}

	// Each frame's data line is the full envelope.
	assert.Contains(t, body, `data: {"event":"text-chunk","data":{"text":"Go is"}}`)
	assert.Contains(t, body, `"thread_id":5`)
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.handleChat(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_MissingQuery(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := postChat(t, s, chat.Request{Model: "gpt-4o"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "query is required", errResp["detail"])
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	s.handleChat(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleChat_UnsupportedModel(t *testing.T) {
	answerer := &scriptedAnswerer{err: fmt.Errorf("%w: %q", chat.ErrUnsupportedModel, "gpt-2")}
	s := newTestServer(answerer, nil, nil)

	rec := postChat(t, s, chat.Request{Query: "q", Model: "gpt-2"})

	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "unsupported model")
}

func TestHandleChat_TurnFailureIsTerminalErrorEvent(t *testing.T) {
	answerer := &scriptedAnswerer{err: fmt.Errorf("searching: upstream down")}
	s := newTestServer(answerer, nil, nil)

	rec := postChat(t, s, chat.Request{Query: "q", Model: "gpt-4o"})

	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	// Internal detail is not leaked to the client.
	assert.NotContains(t, body, "upstream down")
	assert.Contains(t, body, "Error occurred while generating the response")
}

func TestHandleChat_RateLimited(t *testing.T) {
	s := newTestServer(nil, nil, denyLimiter{})

	rec := postChat(t, s, chat.Request{Query: "q", Model: "gpt-4o"})

	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "Rate limit exceeded, please try again later.")
	assert.NotContains(t, body, "begin-stream")
}

func TestHandleHistory_ListsSnapshots(t *testing.T) {
	st := &historyStore{snapshots: []store.Snapshot{
		{ID: 2, Title: "newest", Date: time.Now(), Preview: "preview", ModelName: "gpt-4o"},
		{ID: 1, Title: "older", Date: time.Now().Add(-time.Hour), Preview: "p", ModelName: "gpt-4o"},
	}}
	s := newTestServer(nil, st, nil)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]store.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp["snapshots"], 2)
	assert.Equal(t, "newest", resp["snapshots"][0].Title)
}

func TestHandleHistory_EmptyIsNotNull(t *testing.T) {
	s := newTestServer(nil, &historyStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"snapshots":[]`)
}

func TestHandleHistory_Disabled(t *testing.T) {
	s := newTestServer(nil, store.NewNoopStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "Database is not enabled", errResp["detail"])
}

func TestHandleWipeHistory(t *testing.T) {
	st := &historyStore{}
	s := newTestServer(nil, st, nil)

	req := httptest.NewRequest(http.MethodDelete, "/history", nil)
	rec := httptest.NewRecorder()
	s.handleHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, st.wiped)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "History cleared successfully", resp["message"])
}

func TestHandleThread_ReturnsMessages(t *testing.T) {
	st := &historyStore{thread: &store.ThreadDetail{
		ThreadID: 7,
		Messages: []*store.Message{
			{Role: store.RoleUser, Content: "why go"},
			{
				Role:    store.RoleAssistant,
				Content: "because [1]",
				SearchResults: []search.Result{
					{Title: "Go", URL: "https://go.dev", Content: "lang"},
				},
				RelatedQueries: []string{"a", "b", "c"},
			},
		},
	}}
	s := newTestServer(nil, st, nil)

	req := httptest.NewRequest(http.MethodGet, "/thread/7", nil)
	rec := httptest.NewRecorder()
	s.handleThread(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp threadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(7), resp.ThreadID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, store.RoleUser, resp.Messages[0].Role)
	require.Len(t, resp.Messages[1].Sources, 1)
	assert.Equal(t, "https://go.dev", resp.Messages[1].Sources[0].URL)
}

func TestHandleThread_NotFound(t *testing.T) {
	s := newTestServer(nil, &historyStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/thread/99", nil)
	rec := httptest.NewRecorder()
	s.handleThread(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thread with ID 99 not found")
}

func TestHandleThread_InvalidID(t *testing.T) {
	s := newTestServer(nil, &historyStore{}, nil)

	for _, path := range []string{"/thread/abc", "/thread/0", "/thread/-1", "/thread/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.handleThread(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)
	}
}

func TestHandler_CORSPreflight(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_Health(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
