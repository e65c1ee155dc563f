package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZeeshanML/rag-chatbot-go/internal/chain"
	"github.com/ZeeshanML/rag-chatbot-go/internal/loader"
	"github.com/ZeeshanML/rag-chatbot-go/internal/store"
)

// fakeBlob records uploads and deletes in memory.
type fakeBlob struct {
	uploadErr error
	deleteErr error
	objects   map[string]string
	deleted   []string
	uploads   int
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: make(map[string]string)}
}

func (f *fakeBlob) Upload(_ context.Context, _, filename string) (string, string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", "", f.uploadErr
	}
	key := fmt.Sprintf("key-%d", f.uploads)
	url := "http://blob.test/bucket/" + key
	f.objects[key] = filename
	return key, url, nil
}

func (f *fakeBlob) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

// fakeMeta is an in-memory metadataStore.
type fakeMeta struct {
	insertErr error
	historyAt []store.Message
	docs      map[int64]store.Document
	logs      []store.ChatLog
	nextID    int64
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{docs: make(map[int64]store.Document)}
}

func (f *fakeMeta) InsertDocument(_ context.Context, filename, storageURL string, chunkCount int) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	f.docs[f.nextID] = store.Document{
		ID:         f.nextID,
		Filename:   filename,
		StorageURL: storageURL,
		ChunkCount: chunkCount,
		UploadedAt: time.Now(),
	}
	return f.nextID, nil
}

func (f *fakeMeta) GetDocument(_ context.Context, id int64) (*store.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeMeta) ListDocuments(_ context.Context) ([]store.Document, error) {
	out := make([]store.Document, 0, len(f.docs))
	for id := f.nextID; id >= 1; id-- {
		if d, ok := f.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeMeta) DeleteDocument(_ context.Context, id int64) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeMeta) AppendChatLog(_ context.Context, sessionID, q, a, model string) error {
	f.logs = append(f.logs, store.ChatLog{SessionID: sessionID, UserQuery: q, ModelResponse: a, Model: model})
	return nil
}

func (f *fakeMeta) History(_ context.Context, _ string) ([]store.Message, error) {
	return f.historyAt, nil
}

// fakeIndexer records Index and DeleteDocument calls.
type fakeIndexer struct {
	indexErr  error
	deleteErr error
	indexed   map[int64]int
	purged    []int64
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexed: make(map[int64]int)}
}

func (f *fakeIndexer) Index(_ context.Context, fileID int64, _ string, chunks []string) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed[fileID] = len(chunks)
	return nil
}

func (f *fakeIndexer) DeleteDocument(_ context.Context, fileID int64, chunkCount int) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.purged = append(f.purged, fileID)
	delete(f.indexed, fileID)
	return chunkCount > 0, nil
}

// fakeChain returns a canned answer and records questions.
type fakeChain struct {
	err       error
	answer    string
	questions []string
	histories [][]store.Message
}

func (f *fakeChain) Answer(_ context.Context, question, modelName string, history []store.Message) (*chain.Result, error) {
	f.questions = append(f.questions, question)
	f.histories = append(f.histories, history)
	if f.err != nil {
		return nil, f.err
	}
	model := modelName
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &chain.Result{Answer: f.answer, Model: model}, nil
}

// testEnv bundles the fakes behind a running test server.
type testEnv struct {
	blob    *fakeBlob
	meta    *fakeMeta
	indexer *fakeIndexer
	chain   *fakeChain
	srv     *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		blob:    newFakeBlob(),
		meta:    newFakeMeta(),
		indexer: newFakeIndexer(),
		chain:   &fakeChain{answer: "the answer"},
	}

	cfg := &Config{RateLimit: 1000, RateBurst: 1000}
	if mutate != nil {
		mutate(cfg)
	}

	s, err := New(Deps{
		Blob:     env.blob,
		Store:    env.meta,
		Indexer:  env.indexer,
		Chain:    env.chain,
		Splitter: loader.NewSplitter(1000, 200),
	}, cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)

	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

// multipartBody builds a multipart form with one file field.
func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, env *testEnv, filename, content string) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	resp, err := http.Post(env.srv.URL+"/upload-doc", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postUpload(t, env, "handbook.html", "<p>welcome to the team</p>")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	out := decodeBody[uploadResponse](t, resp)
	if out.FileID != 1 {
		t.Errorf("file id: got %d", out.FileID)
	}
	if !strings.Contains(out.Message, "handbook.html") {
		t.Errorf("message: got %q", out.Message)
	}
	if out.StorageURL == "" {
		t.Error("missing storage url")
	}
	if len(env.blob.objects) != 1 {
		t.Errorf("blob objects: got %d", len(env.blob.objects))
	}
	if _, ok := env.meta.docs[1]; !ok {
		t.Error("metadata record missing")
	}
	if env.indexer.indexed[1] == 0 {
		t.Error("document not indexed")
	}
}

func TestUpload_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postUpload(t, env, "data.csv", "a,b,c")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	// Rejected before any storage side effects.
	if env.blob.uploads != 0 {
		t.Errorf("blob touched: %d uploads", env.blob.uploads)
	}
	if len(env.meta.docs) != 0 {
		t.Error("metadata record created for rejected upload")
	}
}

func TestUpload_EmptyDocument(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postUpload(t, env, "empty.html", "<script>only code</script>")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if env.blob.uploads != 0 {
		t.Errorf("blob touched: %d uploads", env.blob.uploads)
	}
}

func TestUpload_MetadataFailureRemovesBlob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.meta.insertErr = fmt.Errorf("disk full")

	resp := postUpload(t, env, "doc.html", "<p>content here</p>")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(env.blob.objects) != 0 {
		t.Error("blob not compensated after metadata failure")
	}
}

func TestUpload_IndexFailureRemovesBlobAndRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.indexer.indexErr = fmt.Errorf("qdrant down")

	resp := postUpload(t, env, "doc.html", "<p>content here</p>")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(env.blob.objects) != 0 {
		t.Error("blob not compensated after index failure")
	}
	if len(env.meta.docs) != 0 {
		t.Error("record not compensated after index failure")
	}
}

func TestDelete_Success(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	up := postUpload(t, env, "doc.html", "<p>to be removed</p>")
	if up.StatusCode != http.StatusOK {
		t.Fatalf("upload status: got %d", up.StatusCode)
	}
	up.Body.Close()

	resp := postJSON(t, env.srv.URL+"/delete-doc", deleteRequest{FileID: 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	out := decodeBody[deleteResponse](t, resp)
	if !strings.Contains(out.Message, "doc.html") {
		t.Errorf("message: got %q", out.Message)
	}
	if len(env.indexer.purged) != 1 || env.indexer.purged[0] != 1 {
		t.Errorf("vector purge: got %v", env.indexer.purged)
	}
	if len(env.blob.objects) != 0 {
		t.Error("blob not removed")
	}
	if len(env.meta.docs) != 0 {
		t.Error("record not removed")
	}
}

func TestDelete_UnknownID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postJSON(t, env.srv.URL+"/delete-doc", deleteRequest{FileID: 42})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(env.indexer.purged) != 0 {
		t.Error("vector purge attempted for unknown document")
	}
}

func TestDelete_VectorFailureKeepsBlobAndRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	up := postUpload(t, env, "doc.html", "<p>keep me on failure</p>")
	up.Body.Close()
	env.indexer.deleteErr = fmt.Errorf("qdrant down")

	resp := postJSON(t, env.srv.URL+"/delete-doc", deleteRequest{FileID: 1})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	// Nothing downstream of the failed step runs.
	if len(env.blob.objects) != 1 {
		t.Error("blob removed despite vector purge failure")
	}
	if len(env.meta.docs) != 1 {
		t.Error("record removed despite vector purge failure")
	}
}

func TestDelete_BlobFailureKeepsRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	up := postUpload(t, env, "doc.html", "<p>blob failure case</p>")
	up.Body.Close()
	env.blob.deleteErr = fmt.Errorf("storage unreachable")

	resp := postJSON(t, env.srv.URL+"/delete-doc", deleteRequest{FileID: 1})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	// The record survives so the operator can retry the delete.
	if len(env.meta.docs) != 1 {
		t.Error("record removed despite blob failure")
	}
}

func TestChat_HappyPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.meta.historyAt = []store.Message{
		{Role: store.RoleUser, Content: "earlier question"},
		{Role: store.RoleAssistant, Content: "earlier answer"},
	}

	resp := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "what now", SessionID: "s1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	out := decodeBody[chatResponse](t, resp)
	if out.Answer != "the answer" {
		t.Errorf("answer: got %q", out.Answer)
	}
	if out.SessionID != "s1" {
		t.Errorf("session id: got %q", out.SessionID)
	}
	if out.Model != "gpt-4o-mini" {
		t.Errorf("model: got %q", out.Model)
	}
	// The chain saw the stored history.
	if len(env.chain.histories) != 1 || len(env.chain.histories[0]) != 2 {
		t.Errorf("chain histories: %v", env.chain.histories)
	}
	// The completed turn was logged.
	if len(env.meta.logs) != 1 || env.meta.logs[0].SessionID != "s1" {
		t.Errorf("chat logs: %v", env.meta.logs)
	}
}

func TestChat_GeneratesSessionID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	out := decodeBody[chatResponse](t, resp)
	if out.SessionID == "" {
		t.Error("expected generated session id")
	}
}

func TestChat_EmptyQuestion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChat_ChainError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.chain.err = fmt.Errorf("model unavailable")

	resp := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "hello"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(env.meta.logs) != 0 {
		t.Error("failed turn must not be logged")
	}
}

func TestList_NewestFirst(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	for _, name := range []string{"a.html", "b.html"} {
		up := postUpload(t, env, name, "<p>some body text</p>")
		if up.StatusCode != http.StatusOK {
			t.Fatalf("upload %s: status %d", name, up.StatusCode)
		}
		up.Body.Close()
	}

	resp, err := http.Get(env.srv.URL + "/list-docs")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	out := decodeBody[[]documentInfo](t, resp)
	if len(out) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(out))
	}
	if out[0].Filename != "b.html" || out[1].Filename != "a.html" {
		t.Errorf("ordering: %v", out)
	}
	if out[0].StorageURL == "" || out[0].UploadedAt == "" {
		t.Errorf("missing fields: %+v", out[0])
	}
}

func TestAuth_Enforced(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *Config) { cfg.APIKey = "secret-token" })

	// Missing token.
	resp := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "hi"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status: got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong token.
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/list-docs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status: got %d", resp2.StatusCode)
	}
	resp2.Body.Close()

	// Correct token.
	req3, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/list-docs", nil)
	req3.Header.Set("Authorization", "Bearer secret-token")
	resp3, err := http.DefaultClient.Do(req3)
	if err != nil {
		t.Fatal(err)
	}
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("correct token status: got %d", resp3.StatusCode)
	}
	resp3.Body.Close()

	// Health stays open without a token.
	resp4, err := http.Get(env.srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp4.StatusCode != http.StatusOK {
		t.Fatalf("health status: got %d", resp4.StatusCode)
	}
	resp4.Body.Close()
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit = 1
		cfg.RateBurst = 1
	})

	first := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "one"})
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status: got %d", first.StatusCode)
	}

	second := postJSON(t, env.srv.URL+"/chat", chatRequest{Question: "two"})
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status: got %d", second.StatusCode)
	}
	if got := second.Header.Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After: got %q", got)
	}
}

func TestReady_ReflectsProbes(t *testing.T) {
	t.Parallel()

	failing := NewNamedPinger("qdrant", func(context.Context) error {
		return fmt.Errorf("connection refused")
	})
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Pingers = []Pinger{
			NewNamedPinger("storage", func(context.Context) error { return nil }),
			failing,
		}
	})

	resp, err := http.Get(env.srv.URL + "/api/ready")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	out := decodeBody[readyResponse](t, resp)
	if out.Ready {
		t.Error("expected ready=false")
	}
	if len(out.Checks) != 2 {
		t.Fatalf("checks: got %d", len(out.Checks))
	}
	if !out.Checks[0].OK || out.Checks[1].OK {
		t.Errorf("check states: %+v", out.Checks)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	out := decodeBody[map[string]string](t, resp)
	if out["status"] != "ok" {
		t.Errorf("body: %v", out)
	}
}
