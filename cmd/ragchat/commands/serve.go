package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ZeeshanML/rag-chatbot-go/internal/blob"
	"github.com/ZeeshanML/rag-chatbot-go/internal/chain"
	"github.com/ZeeshanML/rag-chatbot-go/internal/embedder"
	"github.com/ZeeshanML/rag-chatbot-go/internal/indexer"
	"github.com/ZeeshanML/rag-chatbot-go/internal/loader"
	"github.com/ZeeshanML/rag-chatbot-go/internal/logging"
	"github.com/ZeeshanML/rag-chatbot-go/internal/provider"
	"github.com/ZeeshanML/rag-chatbot-go/internal/rag"
	"github.com/ZeeshanML/rag-chatbot-go/internal/server"
	"github.com/ZeeshanML/rag-chatbot-go/internal/store"
	"github.com/ZeeshanML/rag-chatbot-go/internal/tracing"
)

// NewServeCmd constructs the `ragchat serve` command, which starts the HTTP
// server exposing the document and chat API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var topK int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragchat HTTP server",
		Long: `Start the ragchat HTTP server on localhost.

The server exposes the document API (upload, list, delete) and the chat API.
It needs a running Qdrant instance (QDRANT_HOST, QDRANT_PORT) and an
S3-compatible object store (S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY,
S3_SECRET_KEY).

Examples:
  ragchat serve
  ragchat serve --port 9090
  MODEL_PROVIDER=ollama ragchat serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			if err := providerCfg.Validate(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			registry := provider.NewRegistry(providerCfg)
			log.Info("provider configured",
				slog.String("provider", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			embBackend := embedder.Backend()
			vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded
			log.Info("embedder initialised", slog.String("provider", embBackend), slog.Uint64("dimensions", vectorSize))

			qdrantCfg := rag.QdrantConfigFromEnv(vectorSize)
			vecStore, err := rag.NewQdrantStore(ctx, qdrantCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to connect to Qdrant at %s:%d: %w", qdrantCfg.Host, qdrantCfg.Port, err)
			}
			defer vecStore.Close()
			log.Info("qdrant store ready",
				slog.String("host", qdrantCfg.Host),
				slog.Int("port", qdrantCfg.Port),
				slog.String("collection", qdrantCfg.Collection),
			)

			retriever, err := rag.NewRetriever(emb, vecStore, topK)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			ix, err := indexer.New(emb, vecStore)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			answerChain, err := chain.New(registry, retriever, topK)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			blobStore, err := blob.New(ctx, blob.ConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: failed to connect to object store: %w", err)
			}

			// Open the metadata database. RAGCHAT_DB overrides the default
			// path (~/.ragchat/ragchat.db).
			dbPath := os.Getenv("RAGCHAT_DB")
			if dbPath == "" {
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("serve: could not resolve database path: %w", err)
				}
			}
			meta, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open metadata store: %w", err)
			}
			defer func() { _ = meta.Close() }()
			log.Info("metadata store opened", slog.String("path", dbPath))

			pingers := []server.Pinger{
				server.NewNamedPinger("qdrant", vecStore.Ping),
				server.NewNamedPinger("object-store", blobStore.Ping),
				server.NewNamedPinger("database", meta.Ping),
			}

			srv, err := server.New(server.Deps{
				Blob:     blobStore,
				Store:    meta,
				Indexer:  ix,
				Chain:    answerChain,
				Splitter: loader.NewSplitter(loader.DefaultChunkSize, loader.DefaultOverlap),
			}, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("RAGCHAT_API_KEY"),
			}, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().IntVar(&topK, "top-k", 2, "Number of document chunks retrieved per question")

	return cmd
}
