// Command anonmirror copies a repository from the anonymized hosting service
// (or github.com) onto local disk, one throttled request at a time.
//
// Usage:
//
//	anonmirror [flags] <url>
//
// A run that fails part way can simply be repeated: files already on disk are
// skipped without a request.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
