package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulntor/memsift/cmd/memsift/commands"
)

// main runs the memsift CLI. Exit codes:
//   - 0: the batch ran to completion, including batches with failed plugins
//   - 1: usage error, run lock held, capacity exhausted or interrupted
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
