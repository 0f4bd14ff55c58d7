// ABOUTME: HTTP API: POST /chat streams turn events via SSE, plus
// ABOUTME: history listing, thread retrieval and history wipe endpoints

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mkfischer/farfalle/internal/chat"
	"github.com/mkfischer/farfalle/internal/store"
)

// Answerer runs one turn, emitting events through the callback. Implemented
// by chat.Orchestrator; abstracted for testing.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request, emit chat.EmitFunc) error
}

// Server exposes the answer engine over HTTP.
type Server struct {
	orchestrator Answerer
	store        store.Store
	limiter      Limiter
	logger       *slog.Logger
}

// NewServer wires the HTTP layer. A nil limiter disables rate limiting.
func NewServer(orchestrator Answerer, st store.Store, limiter Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = noopLimiter{}
	}
	return &Server{
		orchestrator: orchestrator,
		store:        st,
		limiter:      limiter,
		logger:       logger.With("component", "server"),
	}
}

// Handler returns the root handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/thread/", s.handleThread)
	return corsMiddleware(mux)
}

// sseEnvelope is the wire form of every stream event.
type sseEnvelope struct {
	Event chat.EventKind `json:"event"`
	Data  chat.Event     `json:"data"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleChat handles POST /chat requests. The response is an SSE stream of
// envelope-framed turn events; failures after the stream has started are
// reported as a terminal error event rather than an HTTP status.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		s.sendJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	allowed, err := s.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		s.logger.Error("rate limiter check failed", "error", err)
		// Fail open: a broken limiter must not take the API down.
		allowed = true
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if !allowed {
		s.writeSSEEvent(w, chat.Error{Detail: "Rate limit exceeded, please try again later."})
		flusher.Flush()
		return
	}

	emitFailed := false
	emit := func(event chat.Event) error {
		if err := r.Context().Err(); err != nil {
			emitFailed = true
			return err
		}
		if err := s.writeSSEEvent(w, event); err != nil {
			emitFailed = true
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.orchestrator.Answer(r.Context(), req, emit); err != nil {
		if emitFailed {
			s.logger.Info("client disconnected mid-stream", "error", err)
			return
		}
		s.logger.Error("turn failed", "error", err, "query", req.Query)
		s.writeSSEEvent(w, chat.Error{Detail: errorDetail(err)})
		flusher.Flush()
	}
}

// errorDetail maps an orchestration error to the client-facing message.
func errorDetail(err error) string {
	if errors.Is(err, chat.ErrUnsupportedModel) {
		return err.Error()
	}
	return "Error occurred while generating the response"
}

// handleHistory routes history requests by HTTP method.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListHistory(w, r)
	case http.MethodDelete:
		s.handleWipeHistory(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListHistory handles GET /history. Returns one snapshot per thread
// with at least a full turn, newest first.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.store.ListSnapshots(r.Context())
	if errors.Is(err, store.ErrDisabled) {
		s.sendJSONError(w, http.StatusBadRequest, "Database is not enabled")
		return
	}
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if snapshots == nil {
		snapshots = []store.Snapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]store.Snapshot{"snapshots": snapshots})
}

// handleWipeHistory handles DELETE /history.
func (s *Server) handleWipeHistory(w http.ResponseWriter, r *http.Request) {
	err := s.store.WipeAll(r.Context())
	if errors.Is(err, store.ErrDisabled) {
		s.sendJSONError(w, http.StatusBadRequest, "Database is not enabled")
		return
	}
	if err != nil {
		s.logger.Error("failed to wipe history", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "History cleared successfully"})
}

// threadMessage is the JSON form of one stored message.
type threadMessage struct {
	Role           store.Role      `json:"role"`
	Content        string          `json:"content"`
	RelatedQueries []string        `json:"related_queries"`
	Sources        []sourceRef     `json:"sources"`
	Images         []string        `json:"images"`
	AgentResponse  json.RawMessage `json:"agent_response,omitempty"`
}

type sourceRef struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// threadResponse is the JSON response for GET /thread/{id}.
type threadResponse struct {
	ThreadID int64           `json:"thread_id"`
	Messages []threadMessage `json:"messages"`
}

// handleThread handles GET /thread/{id} requests.
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/thread/")
	threadID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || threadID < 1 {
		s.sendJSONError(w, http.StatusBadRequest, "invalid thread id")
		return
	}

	detail, err := s.store.GetThread(r.Context(), threadID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("Thread with ID %d not found", threadID))
		return
	}
	if errors.Is(err, store.ErrDisabled) {
		s.sendJSONError(w, http.StatusBadRequest, "Database is not enabled")
		return
	}
	if err != nil {
		s.logger.Error("failed to get thread", "error", err, "thread_id", threadID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := threadResponse{
		ThreadID: detail.ThreadID,
		Messages: make([]threadMessage, len(detail.Messages)),
	}
	for i, msg := range detail.Messages {
		sources := make([]sourceRef, len(msg.SearchResults))
		for j, res := range msg.SearchResults {
			sources[j] = sourceRef{Title: res.Title, URL: res.URL, Content: res.Content}
		}
		response.Messages[i] = threadMessage{
			Role:           msg.Role,
			Content:        msg.Content,
			RelatedQueries: emptyIfNil(msg.RelatedQueries),
			Sources:        sources,
			Images:         emptyIfNil(msg.ImageResults),
			AgentResponse:  msg.AgentResponse,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeSSEEvent writes one envelope-framed SSE event.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event chat.Event) error {
	dataJSON, err := json.Marshal(sseEnvelope{Event: event.Kind(), Data: event})
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind(), dataJSON)
	return err
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}

// clientIP returns the caller's address for rate-limit accounting, honoring
// X-Forwarded-For from a fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// corsMiddleware allows browser frontends served from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
