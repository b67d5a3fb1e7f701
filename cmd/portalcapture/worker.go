package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/portalcapture/internal/isolate"
	applog "github.com/nao1215/portalcapture/internal/log"
	"github.com/nao1215/portalcapture/internal/scrape"
)

// NewWorkerCmd creates the hidden worker command the executor re-runs the
// binary with. It reads one job from stdin and writes one outcome to stdout.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    isolate.WorkerCommand,
		Short:  "Run a single capture job (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE:   runWorkerCmd,
	}
}

// runWorkerCmd executes the worker command.
// The worker logs everything as JSON on stderr; the parent decides what
// to show.
func runWorkerCmd(cmd *cobra.Command, _ []string) error {
	logger := applog.NewSecureJSONLogger(cmd.ErrOrStderr(), true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return isolate.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), scrape.NewJobFunc(logger))
}
