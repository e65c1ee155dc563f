// Package commands defines all Cobra CLI commands for the ragchat binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ZeeshanML/rag-chatbot-go/internal/audit"
	"github.com/ZeeshanML/rag-chatbot-go/internal/config"
	"github.com/ZeeshanML/rag-chatbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "RAG chatbot over your own documents",
		Long: `ragchat is a retrieval-augmented chatbot service.

Upload PDF, DOCX, or HTML documents and ask questions about them. Documents
are chunked, embedded, and indexed in Qdrant; answers are generated by an
LLM grounded in the retrieved passages, with per-session conversation history.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragchat/config.yaml).
See 'ragchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file in the working directory is convenient for local
			// development; its absence is not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragchat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewChatCmd(),
		NewIngestCmd(),
		NewDocsCmd(),
		NewVersionCmd(),
	)

	return root
}
