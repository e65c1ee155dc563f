package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZeeshanML/rag-chatbot-go/internal/apiclient"
	"github.com/ZeeshanML/rag-chatbot-go/internal/loader"
)

// NewIngestCmd constructs the `ragchat ingest` command, which uploads local
// documents to a running server for storage and indexing.
func NewIngestCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload documents to the ragchat server",
		Long: `Upload one or more local documents to a running ragchat server.

Each file is stored in the object store, chunked, embedded, and indexed in
Qdrant so the chat API can answer questions about it. Supported formats:
PDF, DOCX, and HTML.

Examples:
  ragchat ingest handbook.pdf
  ragchat ingest docs/*.html
  ragchat ingest --server http://localhost:9090 report.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			for _, path := range args {
				if !loader.Supported(path) {
					return fmt.Errorf("ingest: %s: unsupported file type (supported: %v)", path, loader.SupportedExtensions())
				}
			}

			client := apiclient.New(serverURL, apiclient.WithAPIKey(os.Getenv("RAGCHAT_API_KEY")))

			for _, path := range args {
				resp, err := client.Upload(ctx, path)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				log.Info("document ingested",
					slog.String("file", path),
					slog.Int64("file_id", resp.FileID),
				)
				fmt.Printf("%s (file_id: %d)\n", resp.Message, resp.FileID)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", defaultServerURL(), "ragchat server base URL")

	return cmd
}
