// Command physrag is the entry point for the physiology RAG assistant.
// It provides a Cobra CLI for asking questions, searching and ingesting the
// document corpus, and running the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/physrag-go/cmd/physrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
