// Command ragchat is the entry point for the document-grounded chat service.
// It provides a CLI interface (via Cobra) for serving the HTTP API, chunking
// and searching documents locally, and asking one-off questions.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragchat-go/cmd/ragchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
