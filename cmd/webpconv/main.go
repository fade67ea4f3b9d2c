// cmd/webpconv converts every supported image under a bucket prefix to WebP.
//
// Usage:
//
//	webpconv --dry-run
//	webpconv --prefix photos/2024/ --quality 85 --max-workers 8
//	webpconv --report run.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
