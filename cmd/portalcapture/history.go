package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/portalcapture/internal/database"
	"github.com/nao1215/portalcapture/internal/model"
	"github.com/nao1215/portalcapture/internal/report"
)

// ErrNoLedger is returned when the run ledger is disabled.
var ErrNoLedger = errors.New("run ledger is disabled: set PORTALCAPTURE_DATA_DIR or storage.db_dir")

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded capture runs",
		Long: `History lists capture runs from the run ledger, newest first.

The ledger stores the identity, artifact kind, target, final state, error
kind, artifact path and SHA3-256 digest of every run. Secrets are never
stored.

Examples:
  # Show the last runs
  portalcapture history

  # Show runs for one identity as Markdown
  portalcapture history --identity student001 --format markdown

  # Drop runs older than 30 days, then list as JSON
  portalcapture history --prune 720h --format json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("identity", "i", "", "Only show runs for this identity")
	cmd.Flags().StringP("kind", "k", "", "Only show runs for this artifact kind")
	cmd.Flags().IntP("limit", "n", database.DefaultListLimit, "Maximum number of runs to show")
	cmd.Flags().StringP("format", "f", report.FormatText, "Output format: text, json or markdown")
	cmd.Flags().Duration("prune", 0, "Delete runs older than this before listing")

	return cmd
}

// historyOptions holds the history command flags.
type historyOptions struct {
	identity string
	kind     string
	limit    int
	format   string
	prune    time.Duration
	verbose  bool
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DBDir == "" {
		return ErrNoLedger
	}

	opts, err := getHistoryOptions(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer db.Close()

	return showHistory(cmd, db, opts)
}

func getHistoryOptions(cmd *cobra.Command) (historyOptions, error) {
	var (
		opts historyOptions
		err  error
	)
	if opts.identity, err = cmd.Flags().GetString("identity"); err != nil {
		return opts, err
	}
	if opts.kind, err = cmd.Flags().GetString("kind"); err != nil {
		return opts, err
	}
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return opts, err
	}
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return opts, err
	}
	if opts.prune, err = cmd.Flags().GetDuration("prune"); err != nil {
		return opts, err
	}
	if opts.limit < 0 {
		return opts, fmt.Errorf("%w: --limit must not be negative", errUsage)
	}
	if opts.prune < 0 {
		return opts, fmt.Errorf("%w: --prune must not be negative", errUsage)
	}
	opts.verbose = getVerboseFlag(cmd)
	return opts, nil
}

// showHistory prunes, loads and renders the runs.
func showHistory(cmd *cobra.Command, db *database.RunDB, opts historyOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.prune > 0 {
		n, err := db.DeleteRunsBefore(ctx, time.Now().Add(-opts.prune))
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
		if n > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d run(s)\n", n)
		}
	}

	runs, err := db.ListRuns(ctx, database.Filter{
		Identity: opts.identity,
		Kind:     model.ArtifactKind(opts.kind),
		Limit:    opts.limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	var w report.Writer
	if opts.format == report.FormatText || opts.format == "" {
		w = report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(opts.verbose))
	} else {
		w, err = report.New(opts.format, cmd.OutOrStdout())
		if err != nil {
			return err
		}
	}

	_, err = w.Write(report.NewHistory(opts.identity, runs))
	return err
}
