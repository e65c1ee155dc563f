// Package indexer turns document chunks into vector store entries and owns
// their lifecycle: embedding, batched upserts, and per-document purges.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ZeeshanML/rag-chatbot-go/internal/logging"
	"github.com/ZeeshanML/rag-chatbot-go/internal/rag"
)

// batchSize is the number of chunks embedded and upserted per round trip.
const batchSize = 100

// chunkNamespace seeds the deterministic chunk point ids. Re-indexing the
// same document produces the same ids, so stale points are overwritten
// rather than duplicated.
var chunkNamespace = uuid.MustParse("8f1c9f0a-5b7d-4e31-9a46-c1d2e3f4a5b6")

// Indexer embeds chunks and maintains them in a vector store.
type Indexer struct {
	embedder rag.Embedder
	store    rag.VectorStore
}

// New constructs an Indexer.
func New(embedder rag.Embedder, store rag.VectorStore) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("indexer: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("indexer: vector store must not be nil")
	}
	return &Indexer{embedder: embedder, store: store}, nil
}

// ChunkID returns the deterministic point id for a chunk of a document.
func ChunkID(fileID int64, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%d#%d", fileID, chunkIndex))).String()
}

// Index embeds every chunk of a document and upserts the resulting points,
// working in batches so large documents do not produce oversized requests.
// The operation is all-or-nothing from the caller's perspective: any batch
// failure aborts with an error and the caller compensates by purging the
// document.
func (ix *Indexer) Index(ctx context.Context, fileID int64, filename string, chunks []string) error {
	if len(chunks) == 0 {
		return fmt.Errorf("indexer: document %d produced no chunks", fileID)
	}

	log := logging.FromContext(ctx)
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		embeddings, err := ix.embedder.Embed(ctx, batch)
		if err != nil {
			return fmt.Errorf("indexer: embed batch %d-%d of document %d: %w", start, end, fileID, err)
		}

		docs := make([]rag.Document, 0, len(batch))
		for i, content := range batch {
			docs = append(docs, rag.Document{
				ID:      ChunkID(fileID, start+i),
				Content: content,
				Source:  filename,
				FileID:  fileID,
			})
		}

		if err := ix.store.Upsert(ctx, docs, embeddings); err != nil {
			return fmt.Errorf("indexer: upsert batch %d-%d of document %d: %w", start, end, fileID, err)
		}
	}

	log.Info("indexer: document indexed",
		slog.Int64("file_id", fileID),
		slog.String("filename", filename),
		slog.Int("chunks", len(chunks)),
	)
	return nil
}

// DeleteDocument purges every indexed chunk of the document. chunkCount is
// the chunk count recorded on the document record; together with the id it
// reconstructs every chunk point id, so no index query is needed to locate
// them. found is false when the record says no chunks were indexed, which
// callers treat as an already-clean state.
func (ix *Indexer) DeleteDocument(ctx context.Context, fileID int64, chunkCount int) (found bool, err error) {
	if chunkCount <= 0 {
		logging.FromContext(ctx).Warn("indexer: no chunks recorded for document",
			slog.Int64("file_id", fileID))
		return false, nil
	}

	ids := make([]string, chunkCount)
	for i := range ids {
		ids[i] = ChunkID(fileID, i)
	}

	if err := ix.store.DeleteByIDs(ctx, ids); err != nil {
		return false, fmt.Errorf("indexer: purge document %d: %w", fileID, err)
	}
	return true, nil
}
