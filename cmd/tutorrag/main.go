// Command tutorrag is the entry point for the tutoring retrieval engine.
// It provides a CLI interface (via Cobra) for querying course material,
// populating the vector index, and managing personal annotations.
package main

import (
	"fmt"
	"os"

	"github.com/pietrondo/tutor-rag/cmd/tutorrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
