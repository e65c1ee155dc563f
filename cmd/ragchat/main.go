// Command ragchat is the entry point for the RAG chatbot service.
// It provides a CLI interface (via Cobra) with an HTTP server for the
// document and chat API and a terminal client for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/ZeeshanML/rag-chatbot-go/cmd/ragchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
