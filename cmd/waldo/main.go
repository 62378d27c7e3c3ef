// File: cmd/waldo/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/waldo-cli/cmd"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	// A SIGINT during a run cancels the agent context; the second Ctrl+C
	// kills the process through the default handler.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(cmd.Execute(ctx))
}
