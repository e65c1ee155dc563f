// Package apiclient provides a thin HTTP client for the ragchat server API.
// It is used by the chat TUI and the ingest command; external consumers can
// use it as a Go SDK for the service.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultTimeout bounds each API call. Chat requests include model generation,
// so this is deliberately generous.
const defaultTimeout = 120 * time.Second

// Client talks to a running ragchat server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sets the Bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New creates a Client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatRequest is the body for POST /chat.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ChatResponse is the server's answer to a chat request.
type ChatResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

// UploadResponse confirms a stored and indexed document.
type UploadResponse struct {
	Message    string `json:"message"`
	FileID     int64  `json:"file_id"`
	StorageURL string `json:"storage_url"`
}

// DocumentInfo is one entry from GET /list-docs.
type DocumentInfo struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	StorageURL string `json:"storage_url"`
	UploadedAt string `json:"upload_timestamp"`
}

// DeleteResponse confirms a removed document.
type DeleteResponse struct {
	Message string `json:"message"`
}

// Chat sends a question and returns the generated answer. An empty SessionID
// starts a new conversation; the response carries the id to reuse.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.postJSON(ctx, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload sends the file at path to the server for storage and indexing.
func (c *Client) Upload(ctx context.Context, path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("apiclient: open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("apiclient: build form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("apiclient: read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("apiclient: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-doc", &buf)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments returns all indexed documents, newest first.
func (c *Client) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list-docs", nil)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	var out []DocumentInfo
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument removes the document with the given file id from the index,
// the object store, and the metadata database.
func (c *Client) DeleteDocument(ctx context.Context, fileID int64) (*DeleteResponse, error) {
	var out DeleteResponse
	body := struct {
		FileID int64 `json:"file_id"`
	}{FileID: fileID}
	if err := c.postJSON(ctx, "/delete-doc", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports whether the server's dependencies are all reachable.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ready", nil)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	return c.do(req, nil)
}

// postJSON sends a JSON body to path and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apiclient: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request, handles auth and error envelopes, and decodes a
// successful JSON response into out (skipped when out is nil).
func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// apiError turns a non-2xx response into an error, preferring the server's
// JSON error envelope over the raw body.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return &StatusError{Status: resp.StatusCode, Message: envelope.Error}
	}
	return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

// StatusError is returned when the server responds with a non-2xx status.
type StatusError struct {
	// Status is the HTTP status code.
	Status int
	// Message is the server's error message, if any.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: server returned %d", e.Status)
	}
	return fmt.Sprintf("apiclient: server returned %d: %s", e.Status, e.Message)
}
