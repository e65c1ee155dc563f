package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZeeshanML/rag-chatbot-go/internal/chain"
	"github.com/ZeeshanML/rag-chatbot-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the accepted document size (default: 32 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the document and chat routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// blobStore is the object-store surface the handlers need.
// *blob.S3Store satisfies it; tests inject a fake.
type blobStore interface {
	Upload(ctx context.Context, localPath, filename string) (key, publicURL string, err error)
	Delete(ctx context.Context, key string) error
}

// metadataStore is the record-keeping surface the handlers need.
// *store.SQLiteStore satisfies it; tests inject a fake.
type metadataStore interface {
	InsertDocument(ctx context.Context, filename, storageURL string, chunkCount int) (int64, error)
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	ListDocuments(ctx context.Context) ([]store.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	AppendChatLog(ctx context.Context, sessionID, userQuery, modelResponse, model string) error
	History(ctx context.Context, sessionID string) ([]store.Message, error)
}

// documentIndexer maintains a document's chunks in the vector store.
// *indexer.Indexer satisfies it; tests inject a fake.
type documentIndexer interface {
	Index(ctx context.Context, fileID int64, filename string, chunks []string) error
	DeleteDocument(ctx context.Context, fileID int64, chunkCount int) (found bool, err error)
}

// answerer runs the history-aware answering flow.
// *chain.Chain satisfies it; tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, question, modelName string, history []store.Message) (*chain.Result, error)
}

// chunker splits extracted text into embedding-sized windows.
// *loader.Splitter satisfies it.
type chunker interface {
	Split(text string) []string
}

// Deps bundles the components the server dispatches to.
type Deps struct {
	// Blob stores raw document files.
	Blob blobStore
	// Store persists document records and chat logs.
	Store metadataStore
	// Indexer maintains document chunks in the vector store.
	Indexer documentIndexer
	// Chain answers chat questions.
	Chain answerer
	// Splitter chunks extracted document text.
	Splitter chunker
}

// Server is the HTTP server exposing the document and chat API.
type Server struct {
	// deps holds the wired components.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments for this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	// Question is the user's query.
	Question string `json:"question"`
	// SessionID groups turns into a conversation. Generated when empty.
	SessionID string `json:"session_id"`
	// Model optionally overrides the default chat model for this request.
	Model string `json:"model,omitempty"`
}

// chatResponse is the JSON response for POST /chat.
type chatResponse struct {
	// Answer is the generated response.
	Answer string `json:"answer"`
	// SessionID echoes (or introduces) the conversation id.
	SessionID string `json:"session_id"`
	// Model is the model that produced the answer.
	Model string `json:"model"`
}

// uploadResponse is the JSON response for POST /upload-doc.
type uploadResponse struct {
	// Message is a human-readable confirmation.
	Message string `json:"message"`
	// FileID is the id assigned to the stored document.
	FileID int64 `json:"file_id"`
	// StorageURL is the public URL of the stored file.
	StorageURL string `json:"storage_url"`
}

// documentInfo is one entry in the GET /list-docs response.
type documentInfo struct {
	// ID is the document record id.
	ID int64 `json:"id"`
	// Filename is the original client-supplied filename.
	Filename string `json:"filename"`
	// StorageURL is the public URL of the stored file.
	StorageURL string `json:"storage_url"`
	// UploadedAt is the RFC3339 upload timestamp.
	UploadedAt string `json:"upload_timestamp"`
}

// deleteRequest is the JSON body for POST /delete-doc.
type deleteRequest struct {
	// FileID is the id of the document to remove.
	FileID int64 `json:"file_id"`
}

// deleteResponse is the JSON response for POST /delete-doc.
type deleteResponse struct {
	// Message is a human-readable confirmation.
	Message string `json:"message"`
}

// errorResponse is the JSON body for 4xx/5xx responses.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
