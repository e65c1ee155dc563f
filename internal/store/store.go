// Package store provides the SQLite-backed metadata store for the ragchat
// service. It owns two tables: document records (filename, storage URL,
// upload time) and the append-only chat turn log that conversation history
// is reconstructed from.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a reconstructed history message.
type Role string

const (
	// RoleUser is a message sent by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
)

// Document is a persisted document record. A record exists from the moment
// the upload pipeline commits metadata until every dependent artifact (vector
// chunks, stored blob) has been removed.
type Document struct {
	// ID is the store-assigned unique identifier. Immutable once assigned.
	ID int64
	// Filename is the original client-supplied filename.
	Filename string
	// StorageURL is the public URL of the raw document in the object store.
	StorageURL string
	// ChunkCount is the number of chunks indexed for this document. Together
	// with the id it determines every vector id the document owns, so deletion
	// can address its vectors directly instead of querying the index for them.
	ChunkCount int
	// UploadedAt is when the record was created.
	UploadedAt time.Time
}

// Message is a single turn in a reconstructed conversation history.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
}

// ChatLog is one logged chat turn: the user query and the model response,
// with the model that produced it. Entries are append-only.
type ChatLog struct {
	// ID is the store-assigned identifier.
	ID int64
	// SessionID groups turns into one conversation.
	SessionID string
	// UserQuery is the raw user question.
	UserQuery string
	// ModelResponse is the generated answer.
	ModelResponse string
	// Model is the model name used for this turn.
	Model string
	// CreatedAt is when the turn was logged.
	CreatedAt time.Time
}

// MetadataStore persists document records and chat turn logs.
// Implementations must be safe for concurrent use.
type MetadataStore interface {
	// InsertDocument creates a document record and returns its assigned id.
	// chunkCount is the number of chunks the document will be indexed under.
	InsertDocument(ctx context.Context, filename, storageURL string, chunkCount int) (int64, error)
	// GetDocument returns the record with the given id, or nil if none exists.
	GetDocument(ctx context.Context, id int64) (*Document, error)
	// ListDocuments returns all document records, newest first.
	ListDocuments(ctx context.Context) ([]Document, error)
	// DeleteDocument removes the record with the given id.
	DeleteDocument(ctx context.Context, id int64) error
	// AppendChatLog appends one chat turn for the given session.
	AppendChatLog(ctx context.Context, sessionID, userQuery, modelResponse, model string) error
	// History reconstructs the conversation for a session: each logged turn
	// is flattened into a user/assistant message pair, ordered oldest-first.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a MetadataStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the metadata database.
// It resolves to ~/.ragchat/ragchat.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "ragchat.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    filename     TEXT    NOT NULL,
    storage_url  TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL DEFAULT 0,
    uploaded_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_documents_uploaded
    ON documents (uploaded_at);

CREATE TABLE IF NOT EXISTS chat_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id     TEXT    NOT NULL,
    user_query     TEXT    NOT NULL,
    model_response TEXT    NOT NULL,
    model          TEXT    NOT NULL,
    created_at     INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chat_logs_session_created
    ON chat_logs (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// InsertDocument creates a document record and returns its assigned id.
func (s *SQLiteStore) InsertDocument(ctx context.Context, filename, storageURL string, chunkCount int) (int64, error) {
	const q = `INSERT INTO documents (filename, storage_url, chunk_count, uploaded_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, filename, storageURL, chunkCount, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert document id: %w", err)
	}
	return id, nil
}

// GetDocument returns the record with the given id, or nil if none exists.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	const q = `SELECT id, filename, storage_url, chunk_count, uploaded_at FROM documents WHERE id = ?`
	var d Document
	var ts int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.Filename, &d.StorageURL, &d.ChunkCount, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document %d: %w", id, err)
	}
	d.UploadedAt = time.Unix(ts, 0)
	return &d, nil
}

// ListDocuments returns all document records ordered newest-first.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]Document, error) {
	const q = `
SELECT id, filename, storage_url, chunk_count, uploaded_at
FROM   documents
ORDER  BY uploaded_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.Filename, &d.StorageURL, &d.ChunkCount, &ts); err != nil {
			return nil, fmt.Errorf("store: list documents scan: %w", err)
		}
		d.UploadedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes the record with the given id. Deleting an id that
// does not exist is not an error — the end state is the same.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	const q = `DELETE FROM documents WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("store: delete document %d: %w", id, err)
	}
	return nil
}

// AppendChatLog appends one chat turn for the given session.
func (s *SQLiteStore) AppendChatLog(ctx context.Context, sessionID, userQuery, modelResponse, model string) error {
	const q = `INSERT INTO chat_logs (session_id, user_query, model_response, model, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, userQuery, modelResponse, model, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append chat log: %w", err)
	}
	return nil
}

// History reconstructs the conversation for a session. Each logged turn
// yields a user message followed by an assistant message, so a session with
// K turns produces exactly 2K messages, oldest turn first.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	const q = `
SELECT user_query, model_response
FROM   chat_logs
WHERE  session_id = ?
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var query, response string
		if err := rows.Scan(&query, &response); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		msgs = append(msgs,
			Message{Role: RoleUser, Content: query},
			Message{Role: RoleAssistant, Content: response},
		)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return msgs, nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
