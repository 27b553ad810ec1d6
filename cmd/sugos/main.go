// Command sugos exports the case-management orders of a list of person
// identifiers into one zip archive.
//
// Usage:
//
//	sugos tenants
//	sugos export --tenant prod --ids 111,222 --out ./exports
//	sugos links --tenant prod --ids-file ids.txt --json
//	sugos history --limit 10
//	sugos serve --addr :8420
//	sugos mcp
//	sugos hash-password
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "sugos:", err)
		}
		os.Exit(1)
	}
}
