package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZeeshanML/rag-chatbot-go/internal/apiclient"
)

// NewDocsCmd constructs the `ragchat docs` command group for managing
// indexed documents on a running server.
func NewDocsCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage indexed documents",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.New(serverURL, apiclient.WithAPIKey(os.Getenv("RAGCHAT_API_KEY")))
			documents, err := client.ListDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}
			if len(documents) == 0 {
				fmt.Println("No documents indexed.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILENAME\tUPLOADED\tURL")
			for _, d := range documents {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.ID, d.Filename, d.UploadedAt, d.StorageURL)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a document from the index, object store, and database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || fileID <= 0 {
				return fmt.Errorf("docs delete: invalid file id %q", args[0])
			}

			client := apiclient.New(serverURL, apiclient.WithAPIKey(os.Getenv("RAGCHAT_API_KEY")))
			resp, err := client.DeleteDocument(cmd.Context(), fileID)
			if err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			fmt.Println(resp.Message)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL(), "ragchat server base URL")
	cmd.AddCommand(list, del)

	return cmd
}
