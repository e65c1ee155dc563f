package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestChat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header: got %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Question != "what is the policy" {
			t.Errorf("question: got %q", req.Question)
		}
		json.NewEncoder(w).Encode(ChatResponse{Answer: "42", SessionID: "s1", Model: "gpt-4o-mini"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("test-key"))
	resp, err := c.Chat(context.Background(), ChatRequest{Question: "what is the policy"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Answer != "42" || resp.SessionID != "s1" {
		t.Errorf("response: %+v", resp)
	}
}

func TestUpload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.html")
	if err := os.WriteFile(path, []byte("<p>hello</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "notes.html" {
			t.Errorf("filename: got %q", hdr.Filename)
		}
		body, _ := io.ReadAll(f)
		if string(body) != "<p>hello</p>" {
			t.Errorf("body: got %q", body)
		}
		json.NewEncoder(w).Encode(UploadResponse{Message: "ok", FileID: 7})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.FileID != 7 {
		t.Errorf("file id: got %d", resp.FileID)
	}
}

func TestListDocuments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]DocumentInfo{
			{ID: 2, Filename: "b.pdf"},
			{ID: 1, Filename: "a.pdf"},
		})
	}))
	defer srv.Close()

	docs, err := New(srv.URL).ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].Filename != "b.pdf" {
		t.Errorf("docs: %+v", docs)
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "document not found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).DeleteDocument(context.Background(), 99)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusNotFound || se.Message != "document not found" {
		t.Errorf("status error: %+v", se)
	}
}

func TestErrorEnvelope_PlainText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(srv.URL).Ready(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusTooManyRequests || se.Message != "rate limit exceeded" {
		t.Errorf("status error: %+v", se)
	}
}

func TestNoAuthHeaderWithoutKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected auth header: %q", got)
		}
		json.NewEncoder(w).Encode([]DocumentInfo{})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).ListDocuments(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
}
