// Command cvgen is the entry point for the retrieval-augmented CV generator.
// It provides a CLI interface (via Cobra) for building the index, generating
// a CV and serving the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/54b3r/cvgen-go/cmd/cvgen/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := commands.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
