// Command solbeam is a CLI for reliable bulk SPL token transfers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/solbeam/solbeam/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev" //nolint:gochecknoglobals // Build-time variable.

func main() {
	// A first interrupt cancels the context so the run stops at the next
	// record boundary with all progress persisted; a second interrupt kills
	// the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrRecordsFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
