package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ZeeshanML/rag-chatbot-go/internal/apiclient"
	"github.com/ZeeshanML/rag-chatbot-go/internal/tui"
)

// NewChatCmd constructs the `ragchat chat` command, which opens the
// interactive terminal client against a running server.
func NewChatCmd() *cobra.Command {
	var serverURL string
	var modelName string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat client",
		Long: `Open the interactive terminal chat client.

The client talks to a running ragchat server; start one with 'ragchat serve'.
Conversation history is kept per session on the server, so follow-up
questions are understood in context.

Examples:
  ragchat chat
  ragchat chat --server http://localhost:9090
  ragchat chat --model gpt-4o`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.New(serverURL, apiclient.WithAPIKey(os.Getenv("RAGCHAT_API_KEY")))
			return tui.Run(client, modelName)
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", defaultServerURL(), "ragchat server base URL")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Override the server's default chat model")

	return cmd
}

// defaultServerURL resolves the server address from RAGCHAT_SERVER, falling
// back to the default serve address.
func defaultServerURL() string {
	if v := os.Getenv("RAGCHAT_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}
