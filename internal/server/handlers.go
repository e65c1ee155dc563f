package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZeeshanML/rag-chatbot-go/internal/blob"
	"github.com/ZeeshanML/rag-chatbot-go/internal/loader"
	"github.com/ZeeshanML/rag-chatbot-go/internal/logging"
)

// handleChat handles POST /chat. It reconstructs the session history, runs
// the answering chain, and logs the completed turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := s.deps.Store.History(r.Context(), sessionID)
	if err != nil {
		log.Error("chat: load history failed", slog.Any("error", err))
		s.metrics.chatRequestsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to load conversation history")
		return
	}

	result, err := s.deps.Chain.Answer(r.Context(), req.Question, req.Model, history)
	if err != nil {
		log.Error("chat: answer failed", slog.Any("error", err))
		s.metrics.chatRequestsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to generate answer")
		return
	}

	// A lost log entry degrades future history but the user already has the
	// answer, so this is non-fatal.
	if err := s.deps.Store.AppendChatLog(r.Context(), sessionID, req.Question, result.Answer, result.Model); err != nil {
		log.Warn("chat: persist turn failed", slog.Any("error", err))
	}

	s.metrics.chatRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    result.Answer,
		SessionID: sessionID,
		Model:     result.Model,
	})
}

// handleUpload handles POST /upload-doc. The pipeline runs store → record →
// index; a failure at any step unwinds the artifacts created so far, so a
// document either becomes fully queryable or leaves no trace.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	filename := header.Filename
	if !loader.Supported(filename) {
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest,
			"unsupported file type; allowed: "+strings.Join(loader.SupportedExtensions(), ", "))
		return
	}

	// Spool to a temp file; removed unconditionally once the pipeline ends.
	tmp, err := os.CreateTemp("", "ragchat-upload-*")
	if err != nil {
		s.uploadFailed(w, log, "create temp file", err)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.uploadFailed(w, log, "spool upload", err)
		return
	}
	if err := tmp.Close(); err != nil {
		s.uploadFailed(w, log, "flush upload", err)
		return
	}

	// Extract and chunk before any storage side effects, so an unreadable
	// document is rejected without cleanup.
	text, err := loader.ExtractFile(tmpPath, filename)
	if err != nil {
		var unsupported *loader.ErrUnsupportedExtension
		if errors.As(err, &unsupported) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Warn("upload: extract failed", slog.String("filename", filename), slog.Any("error", err))
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusUnprocessableEntity, "could not extract text from document")
		return
	}
	chunks := s.deps.Splitter.Split(text)
	if len(chunks) == 0 {
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusUnprocessableEntity, "document contains no extractable text")
		return
	}

	// The storage sequence and its rollback ordering are a correctness
	// contract, so they are laid out as an explicit step table: a failure at
	// any step compensates every completed step in reverse.
	var (
		key       string
		publicURL string
		fileID    int64
	)
	failedStep, err := runSteps(r.Context(), log, []step{
		{
			name: "store document",
			run: func(ctx context.Context) error {
				var err error
				key, publicURL, err = s.deps.Blob.Upload(ctx, tmpPath, filename)
				return err
			},
			compensate: func(ctx context.Context) error {
				return s.deps.Blob.Delete(ctx, key)
			},
		},
		{
			name: "record metadata",
			run: func(ctx context.Context) error {
				var err error
				fileID, err = s.deps.Store.InsertDocument(ctx, filename, publicURL, len(chunks))
				return err
			},
			compensate: func(ctx context.Context) error {
				return s.deps.Store.DeleteDocument(ctx, fileID)
			},
		},
		{
			name: "index document",
			run: func(ctx context.Context) error {
				return s.deps.Indexer.Index(ctx, fileID, filename, chunks)
			},
		},
	})
	if err != nil {
		s.uploadFailed(w, log, failedStep, err)
		return
	}

	s.metrics.uploadsTotal.WithLabelValues("ok").Inc()
	log.Info("upload: document stored",
		slog.Int64("file_id", fileID),
		slog.String("filename", filename),
		slog.Int("chunks", len(chunks)),
	)

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:    "File " + filename + " has been uploaded and indexed",
		FileID:     fileID,
		StorageURL: publicURL,
	})
}

// uploadFailed logs an upload pipeline failure and sends the 500 response.
func (s *Server) uploadFailed(w http.ResponseWriter, log *slog.Logger, step string, err error) {
	log.Error("upload: "+step+" failed", slog.Any("error", err))
	s.metrics.uploadsTotal.WithLabelValues("error").Inc()
	writeError(w, http.StatusInternalServerError, "failed to "+step)
}

// handleList handles GET /list-docs, newest first.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Store.ListDocuments(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list: query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	out := make([]documentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentInfo{
			ID:         d.ID,
			Filename:   d.Filename,
			StorageURL: d.StorageURL,
			UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDelete handles POST /delete-doc. Removal runs vectors → blob →
// record, so an interrupted delete never leaves dangling chunks behind a
// missing record: the record survives until everything it points at is gone.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileID <= 0 {
		writeError(w, http.StatusBadRequest, "file_id is required")
		return
	}

	doc, err := s.deps.Store.GetDocument(r.Context(), req.FileID)
	if err != nil {
		log.Error("delete: lookup failed", slog.Any("error", err))
		s.metrics.deletesTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to look up document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	// Removal is a forward-only step table with no compensations: a failure
	// aborts with everything downstream intact, and the record outlives every
	// artifact it points at so the delete can be retried. Vector purge runs
	// first against the chunk ids reconstructed from the record's chunk count;
	// an unindexed document (found=false) is already clean.
	failedStep, err := runSteps(r.Context(), log, []step{
		{
			name: "remove document index",
			run: func(ctx context.Context) error {
				_, err := s.deps.Indexer.DeleteDocument(ctx, req.FileID, doc.ChunkCount)
				return err
			},
		},
		{
			name: "remove stored file",
			run: func(ctx context.Context) error {
				key, err := blob.KeyFromURL(doc.StorageURL)
				if err != nil {
					return err
				}
				return s.deps.Blob.Delete(ctx, key)
			},
		},
		{
			name: "remove document record",
			run: func(ctx context.Context) error {
				return s.deps.Store.DeleteDocument(ctx, req.FileID)
			},
		},
	})
	if err != nil {
		log.Error("delete: "+failedStep+" failed",
			slog.Int64("file_id", req.FileID), slog.Any("error", err))
		s.metrics.deletesTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to "+failedStep)
		return
	}

	s.metrics.deletesTotal.WithLabelValues("ok").Inc()
	log.Info("delete: document removed",
		slog.Int64("file_id", req.FileID),
		slog.String("filename", doc.Filename),
	)
	writeJSON(w, http.StatusOK, deleteResponse{
		Message: "Document " + doc.Filename + " has been deleted",
	})
}
