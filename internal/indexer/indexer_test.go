package indexer

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/ZeeshanML/rag-chatbot-go/internal/rag"
)

// fakeEmbedder returns a one-dimensional vector per text.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

// fakeVectorStore records upserted documents in memory.
type fakeVectorStore struct {
	upsertErr error
	deleteErr error
	docs      map[string]rag.Document
	upserts   int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{docs: make(map[string]rag.Document)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if len(docs) != len(embeddings) {
		return fmt.Errorf("docs/embeddings length mismatch")
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int) ([]rag.Document, error) {
	return nil, nil
}

func (f *fakeVectorStore) DeleteByIDs(_ context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeVectorStore) Close() error { return nil }

func chunksOf(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "chunk " + strconv.Itoa(i)
	}
	return out
}

func TestIndex_StoresEveryChunk(t *testing.T) {
	t.Parallel()

	vs := newFakeVectorStore()
	ix, err := New(&fakeEmbedder{}, vs)
	if err != nil {
		t.Fatal(err)
	}

	if err := ix.Index(context.Background(), 7, "report.pdf", chunksOf(5)); err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(vs.docs) != 5 {
		t.Fatalf("expected 5 stored chunks, got %d", len(vs.docs))
	}
	for _, d := range vs.docs {
		if d.FileID != 7 {
			t.Errorf("file id: got %d", d.FileID)
		}
		if d.Source != "report.pdf" {
			t.Errorf("source: got %q", d.Source)
		}
	}
}

func TestIndex_Batches(t *testing.T) {
	t.Parallel()

	vs := newFakeVectorStore()
	emb := &fakeEmbedder{}
	ix, err := New(emb, vs)
	if err != nil {
		t.Fatal(err)
	}

	// 250 chunks cross the batch size of 100 → 3 batches.
	if err := ix.Index(context.Background(), 1, "big.pdf", chunksOf(250)); err != nil {
		t.Fatalf("index: %v", err)
	}
	if emb.calls != 3 {
		t.Errorf("embed calls: got %d, want 3", emb.calls)
	}
	if vs.upserts != 3 {
		t.Errorf("upsert calls: got %d, want 3", vs.upserts)
	}
	if len(vs.docs) != 250 {
		t.Errorf("stored chunks: got %d, want 250", len(vs.docs))
	}
}

func TestIndex_NoChunks(t *testing.T) {
	t.Parallel()

	ix, err := New(&fakeEmbedder{}, newFakeVectorStore())
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(context.Background(), 1, "empty.pdf", nil); err == nil {
		t.Fatal("expected error for empty chunk list")
	}
}

func TestIndex_EmbedFailureAborts(t *testing.T) {
	t.Parallel()

	vs := newFakeVectorStore()
	ix, err := New(&fakeEmbedder{err: fmt.Errorf("rate limited")}, vs)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(context.Background(), 1, "doc.pdf", chunksOf(3)); err == nil {
		t.Fatal("expected error")
	}
	if len(vs.docs) != 0 {
		t.Errorf("no chunks should be stored, got %d", len(vs.docs))
	}
}

func TestDeleteDocument(t *testing.T) {
	t.Parallel()

	vs := newFakeVectorStore()
	ix, err := New(&fakeEmbedder{}, vs)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(context.Background(), 3, "a.pdf", chunksOf(4)); err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(context.Background(), 4, "b.pdf", chunksOf(2)); err != nil {
		t.Fatal(err)
	}

	found, err := ix.DeleteDocument(context.Background(), 3, 4)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !found {
		t.Error("expected found=true")
	}
	// Only document 4's chunks remain.
	if len(vs.docs) != 2 {
		t.Errorf("remaining chunks: got %d, want 2", len(vs.docs))
	}
}

func TestDeleteDocument_NoChunksRecorded(t *testing.T) {
	t.Parallel()

	ix, err := New(&fakeEmbedder{}, newFakeVectorStore())
	if err != nil {
		t.Fatal(err)
	}
	found, err := ix.DeleteDocument(context.Background(), 99, 0)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if found {
		t.Error("expected found=false for a document with no recorded chunks")
	}
}

func TestDeleteDocument_StoreError(t *testing.T) {
	t.Parallel()

	vs := newFakeVectorStore()
	vs.deleteErr = fmt.Errorf("connection refused")
	ix, err := New(&fakeEmbedder{}, vs)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.DeleteDocument(context.Background(), 1, 3); err == nil {
		t.Fatal("expected error when the vector store fails")
	}
}

func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()

	a := ChunkID(7, 0)
	b := ChunkID(7, 0)
	if a != b {
		t.Errorf("ids differ: %q vs %q", a, b)
	}
	if ChunkID(7, 1) == a {
		t.Error("different chunk index should yield a different id")
	}
	if ChunkID(8, 0) == a {
		t.Error("different file id should yield a different id")
	}
}
