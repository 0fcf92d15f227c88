// Command junu is the entry point for Junu, a Nepali government-services
// assistant. It provides a CLI (via Cobra) for ingestion, one-shot and
// interactive questions, speech utilities, and the HTTP server that backs
// the web UI.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/junu-go/cmd/junu/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
