// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides thread/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkfischer/farfalle/internal/search"
)

// citationRe matches bracketed numeric citation markers such as [1] or [23].
var citationRe = regexp.MustCompile(`\[[0-9]+\]`)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// appendMu serializes parent-id resolution so concurrent appends to the
	// same thread cannot break the parent chain. SQLite allows a single
	// writer at a time anyway, so this costs nothing across threads.
	appendMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_thread (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			model_name   TEXT NOT NULL,
			time_created TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chat_message (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_thread_id    INTEGER NOT NULL REFERENCES chat_thread(id),
			role              TEXT NOT NULL,
			content           TEXT NOT NULL,
			parent_message_id INTEGER,
			image_results     TEXT NOT NULL DEFAULT '[]',
			related_queries   TEXT NOT NULL DEFAULT '[]',
			agent_response    TEXT,
			time_created      TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_chat_message_thread
			ON chat_message(chat_thread_id);

		CREATE TABLE IF NOT EXISTS search_result (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_message_id INTEGER NOT NULL REFERENCES chat_message(id),
			url             TEXT NOT NULL,
			title           TEXT NOT NULL,
			content         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_search_result_message
			ON search_result(chat_message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateThread creates a new thread for the given model name.
func (s *SQLiteStore) CreateThread(ctx context.Context, modelName string) (*Thread, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_thread (model_name, time_created) VALUES (?, ?)`,
		modelName, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting thread: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting thread id: %w", err)
	}

	s.logger.Debug("created thread", "id", id, "model", modelName)
	return &Thread{ID: id, ModelName: modelName, CreatedAt: now}, nil
}

// AppendMessage appends one message to a thread. The parent message id is
// resolved from the most recently inserted message of the thread at call
// time; the message row and its search results are committed together, so a
// message without its sources is never observable.
func (s *SQLiteStore) AppendMessage(ctx context.Context, params AppendParams) (*Message, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	msg, err := s.appendMessageTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "thread_id", msg.ThreadID, "role", msg.Role)
	return msg, nil
}

// appendMessageTx writes a message and its search results inside tx.
func (s *SQLiteStore) appendMessageTx(ctx context.Context, tx *sql.Tx, params AppendParams) (*Message, error) {
	// Resolve the parent: the most recently inserted message of the thread.
	var parentID *int64
	var lastID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM chat_message WHERE chat_thread_id = ? ORDER BY id DESC LIMIT 1`,
		params.ThreadID,
	).Scan(&lastID)
	switch {
	case err == sql.ErrNoRows:
		// First message of the thread, no parent.
	case err != nil:
		return nil, fmt.Errorf("resolving parent message: %w", err)
	default:
		parentID = &lastID
	}

	images, err := json.Marshal(emptyIfNil(params.ImageResults))
	if err != nil {
		return nil, fmt.Errorf("encoding image results: %w", err)
	}
	related, err := json.Marshal(emptyIfNil(params.RelatedQueries))
	if err != nil {
		return nil, fmt.Errorf("encoding related queries: %w", err)
	}

	var agentResponse any
	if len(params.AgentResponse) > 0 {
		agentResponse = string(params.AgentResponse)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_message
			(chat_thread_id, role, content, parent_message_id, image_results, related_queries, agent_response, time_created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		params.ThreadID,
		string(params.Role),
		params.Content,
		parentID,
		string(images),
		string(related),
		agentResponse,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	msgID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	for _, sr := range params.SearchResults {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_result (chat_message_id, url, title, content)
			VALUES (?, ?, ?, ?)`,
			msgID, sr.URL, sr.Title, sr.Content,
		); err != nil {
			return nil, fmt.Errorf("inserting search result: %w", err)
		}
	}

	return &Message{
		ID:              msgID,
		ThreadID:        params.ThreadID,
		Role:            params.Role,
		Content:         params.Content,
		ParentMessageID: parentID,
		SearchResults:   params.SearchResults,
		ImageResults:    emptyIfNil(params.ImageResults),
		RelatedQueries:  emptyIfNil(params.RelatedQueries),
		AgentResponse:   params.AgentResponse,
		CreatedAt:       now,
	}, nil
}

// SaveTurn persists one user/assistant pair, creating the thread if needed.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn Turn) (int64, error) {
	var threadID int64
	if turn.ThreadID != nil {
		threadID = *turn.ThreadID
	} else {
		thread, err := s.CreateThread(ctx, turn.Model)
		if err != nil {
			return 0, err
		}
		threadID = thread.ID
	}

	if _, err := s.AppendMessage(ctx, AppendParams{
		ThreadID: threadID,
		Role:     RoleUser,
		Content:  turn.UserText,
	}); err != nil {
		return 0, fmt.Errorf("appending user message: %w", err)
	}

	if _, err := s.AppendMessage(ctx, AppendParams{
		ThreadID:       threadID,
		Role:           RoleAssistant,
		Content:        turn.AssistantText,
		SearchResults:  turn.SearchResults,
		ImageResults:   turn.ImageResults,
		RelatedQueries: turn.RelatedQueries,
		AgentResponse:  turn.AgentResponse,
	}); err != nil {
		return 0, fmt.Errorf("appending assistant message: %w", err)
	}

	s.logger.Debug("saved turn", "thread_id", threadID)
	return threadID, nil
}

// ListSnapshots returns one snapshot per thread with more than one message,
// ordered newest thread first. Threads created in the same second keep
// message insertion order, so the earlier thread lists first. The preview is
// the second message's content with bracketed numeric citation markers
// removed.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.model_name, t.time_created, m.content
		FROM chat_thread t
		JOIN chat_message m ON m.chat_thread_id = t.id
		ORDER BY t.time_created DESC, m.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	type threadAcc struct {
		snapshot Snapshot
		contents []string
	}

	var order []int64
	acc := make(map[int64]*threadAcc)

	for rows.Next() {
		var (
			id         int64
			modelName  string
			createdStr string
			content    string
		)
		if err := rows.Scan(&id, &modelName, &createdStr, &content); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}

		ta, ok := acc[id]
		if !ok {
			created, err := time.Parse(time.RFC3339, createdStr)
			if err != nil {
				return nil, fmt.Errorf("parsing time_created: %w", err)
			}
			ta = &threadAcc{snapshot: Snapshot{ID: id, Date: created, ModelName: modelName}}
			acc[id] = ta
			order = append(order, id)
		}
		if len(ta.contents) < 2 {
			ta.contents = append(ta.contents, content)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(order))
	for _, id := range order {
		ta := acc[id]
		// Threads with a lone orphaned message are excluded.
		if len(ta.contents) < 2 {
			continue
		}
		ta.snapshot.Title = ta.contents[0]
		ta.snapshot.Preview = citationRe.ReplaceAllString(ta.contents[1], "")
		snapshots = append(snapshots, ta.snapshot)
	}

	return snapshots, nil
}

// GetThread returns all messages of a thread in ascending insertion order
// with sources, images, related queries and agent responses hydrated.
// A thread with zero messages is indistinguishable from a missing one and
// yields ErrNotFound.
func (s *SQLiteStore) GetThread(ctx context.Context, threadID int64) (*ThreadDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_thread_id, role, content, parent_message_id,
		       image_results, related_queries, agent_response, time_created
		FROM chat_message
		WHERE chat_thread_id = ?
		ORDER BY id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	byID := make(map[int64]*Message)

	for rows.Next() {
		var (
			msg           Message
			parentID      sql.NullInt64
			imagesJSON    string
			relatedJSON   string
			agentResponse sql.NullString
			createdStr    string
			role          string
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &role, &msg.Content, &parentID,
			&imagesJSON, &relatedJSON, &agentResponse, &createdStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Role = Role(role)
		if parentID.Valid {
			v := parentID.Int64
			msg.ParentMessageID = &v
		}
		if err := json.Unmarshal([]byte(imagesJSON), &msg.ImageResults); err != nil {
			return nil, fmt.Errorf("decoding image results: %w", err)
		}
		if err := json.Unmarshal([]byte(relatedJSON), &msg.RelatedQueries); err != nil {
			return nil, fmt.Errorf("decoding related queries: %w", err)
		}
		if agentResponse.Valid && agentResponse.String != "" {
			msg.AgentResponse = json.RawMessage(agentResponse.String)
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message time_created: %w", err)
		}

		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	if len(messages) == 0 {
		return nil, ErrNotFound
	}

	// Hydrate search results for the whole thread in one pass.
	srcRows, err := s.db.QueryContext(ctx, `
		SELECT sr.chat_message_id, sr.url, sr.title, sr.content
		FROM search_result sr
		JOIN chat_message m ON m.id = sr.chat_message_id
		WHERE m.chat_thread_id = ?
		ORDER BY sr.id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying search results: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var (
			msgID int64
			sr    search.Result
		)
		if err := srcRows.Scan(&msgID, &sr.URL, &sr.Title, &sr.Content); err != nil {
			return nil, fmt.Errorf("scanning search result row: %w", err)
		}
		if msg, ok := byID[msgID]; ok {
			msg.SearchResults = append(msg.SearchResults, sr)
		}
	}
	if err := srcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search result rows: %w", err)
	}

	return &ThreadDetail{ThreadID: threadID, Messages: messages}, nil
}

// WipeAll deletes all search results, then all messages, then all threads,
// inside one transaction. Any failure rolls the whole deletion back.
func (s *SQLiteStore) WipeAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning wipe transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM search_result`,
		`DELETE FROM chat_message`,
		`DELETE FROM chat_thread`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("wiping store: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing wipe: %w", err)
	}

	s.logger.Warn("wiped all conversation history")
	return nil
}

// emptyIfNil normalizes a nil slice to an empty one so JSON columns always
// hold arrays.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
