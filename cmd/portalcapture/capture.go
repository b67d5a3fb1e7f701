package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/portalcapture/internal/artifact"
	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/database"
	"github.com/nao1215/portalcapture/internal/isolate"
	"github.com/nao1215/portalcapture/internal/metrics"
	"github.com/nao1215/portalcapture/internal/model"
	"github.com/nao1215/portalcapture/internal/pipeline"
	"github.com/nao1215/portalcapture/internal/scrape"
)

// EnvSecret supplies the secret for a single capture without stdin.
const EnvSecret = "PORTALCAPTURE_SECRET"

// ErrBatchFailed is returned when at least one batch entry failed.
var ErrBatchFailed = errors.New("batch capture failed")

// NewCaptureCmd creates the capture command.
func NewCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture [identity]",
		Short: "Log in and capture an authenticated page",
		Long: `Capture logs in to the portal as the given identity, renders the target
page and stores it as <identity>_<kind>.png in the storage directory.

The secret is read from the PORTALCAPTURE_SECRET environment variable or,
when unset, from the first line of standard input. It is handed to the
worker process over a pipe and never appears in arguments, logs or the
run ledger.

Exit status is 2 when the portal rejects the credentials and 1 for any
other failure (network, captcha, render or worker problems).

Examples:
  # Capture the test marks page
  echo "$PASSWORD" | portalcapture capture student001

  # Capture the attendance page through a custom target
  portalcapture capture --kind attendance --target https://portal/attendance.php student001

  # Stream the PNG to another program and delete the file afterwards
  portalcapture capture --stdout student001 < secret.txt > marks.png

  # Capture many identities (identity<TAB>secret or identity:secret per line)
  portalcapture capture --batch credentials.tsv --concurrency 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCaptureCmd,
	}

	cmd.Flags().StringP("kind", "k", "",
		"Artifact kind, used in the file name and to pick the target URL (default: tests)")
	cmd.Flags().StringP("target", "t", "",
		"Page to capture (default: the configured target for --kind)")
	cmd.Flags().StringP("batch", "b", "",
		"Read identity<TAB>secret lines from this file ('-' for stdin)")
	cmd.Flags().Bool("stdout", false,
		"Write the PNG to standard output and remove the stored file")
	cmd.Flags().String("render-backend", "",
		"Render backend: splash or cdp")
	cmd.Flags().StringP("render-endpoint", "r", "",
		"Render service URL (overrides SPLASH_INSTANCE)")
	cmd.Flags().StringP("storage-dir", "d", "",
		"Directory artifacts are written to")
	cmd.Flags().DurationP("timeout", "T", 0,
		"Time limit for one capture including the worker process")
	cmd.Flags().IntP("concurrency", "n", 0,
		"Number of concurrent captures in batch mode")

	return cmd
}

// runCaptureCmd executes the capture command.
func runCaptureCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	batchPath, toStdout, err := applyCaptureFlags(cmd, cfg)
	if err != nil {
		return err
	}

	switch {
	case batchPath != "" && len(args) > 0:
		return fmt.Errorf("%w: an identity argument cannot be combined with --batch", errUsage)
	case batchPath != "" && toStdout:
		return fmt.Errorf("%w: --stdout cannot be combined with --batch", errUsage)
	case batchPath == "" && len(args) == 0:
		return fmt.Errorf("%w: specify an identity or --batch FILE", errUsage)
	}

	cfg.ResolveTarget()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)
	defer initSentry(cfg, logger)()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, closeAll, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if batchPath != "" {
		creds, err := readBatch(cmd, batchPath)
		if err != nil {
			return err
		}
		return runBatchCapture(ctx, cmd.OutOrStdout(), orch, cfg, creds, logger)
	}

	secret, err := readSecret(cmd.InOrStdin())
	if err != nil {
		return err
	}

	identity := args[0]
	path, err := orch.RunScrape(ctx, identity, secret, "")
	if err != nil {
		reportError(err, identity)
		return err
	}

	if toStdout {
		return streamArtifact(cmd.OutOrStdout(), orch.Store(), path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// applyCaptureFlags copies the set command flags into cfg and returns the
// batch file path and the --stdout switch.
func applyCaptureFlags(cmd *cobra.Command, cfg *config.Config) (string, bool, error) {
	flags := cmd.Flags()

	// The kind goes first: it may drop a target inherited from the
	// environment, while an explicit --target below still wins.
	kind, err := flags.GetString("kind")
	if err != nil {
		return "", false, err
	}
	cfg.SelectKind(kind)

	strFlags := []struct {
		name string
		dst  *string
	}{
		{"target", &cfg.TargetURL},
		{"render-backend", &cfg.RenderBackend},
		{"render-endpoint", &cfg.RenderEndpoint},
		{"storage-dir", &cfg.StorageDir},
	}
	for _, f := range strFlags {
		v, err := flags.GetString(f.name)
		if err != nil {
			return "", false, err
		}
		if v != "" {
			*f.dst = v
		}
	}

	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return "", false, err
	}
	if timeout > 0 {
		cfg.JobTimeout = timeout
	}

	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return "", false, err
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}

	batchPath, err := flags.GetString("batch")
	if err != nil {
		return "", false, err
	}
	toStdout, err := flags.GetBool("stdout")
	if err != nil {
		return "", false, err
	}
	return batchPath, toStdout, nil
}

// newOrchestrator wires the executor, ledger and metrics for cfg.
// The returned function releases them.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) (*scrape.Orchestrator, func(), error) {
	exec, err := isolate.NewExecutor(
		isolate.WithTimeout(cfg.JobTimeout),
		isolate.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	opts := []scrape.Option{scrape.WithLogger(logger)}
	closeAll := func() {}

	if cfg.DBDir != "" {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open run ledger: %w", err)
		}
		opts = append(opts, scrape.WithLedger(db))
		closeAll = func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close run ledger", "error", err)
			}
		}
	}
	if cfg.MetricsFile != "" {
		opts = append(opts, scrape.WithMetrics(metrics.NewRecorder(cfg.MetricsFile)))
	}

	return scrape.New(cfg, exec, opts...), closeAll, nil
}

// readSecret returns the secret from EnvSecret or the first line of r.
func readSecret(r io.Reader) (string, error) {
	if v, ok := os.LookupEnv(EnvSecret); ok && v != "" {
		return v, nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", fmt.Errorf("%w: set %s or pass the secret on standard input", model.ErrEmptySecret, EnvSecret)
	}
	return secret, nil
}

// readBatch opens the batch file, or stdin for "-", and parses it.
func readBatch(cmd *cobra.Command, path string) ([]model.Credential, error) {
	if path == "-" {
		return parseBatch(cmd.InOrStdin())
	}
	f, err := os.Open(path) //nolint:gosec // User-provided batch file is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()
	return parseBatch(f)
}

// parseBatch reads one credential per line. A line is identity<TAB>secret
// or identity:secret; blank lines and lines starting with '#' are skipped.
func parseBatch(r io.Reader) ([]model.Credential, error) {
	var creds []model.Credential

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		sep := "\t"
		if !strings.Contains(line, sep) {
			sep = ":"
		}
		identity, secret, ok := strings.Cut(line, sep)
		if !ok {
			return nil, fmt.Errorf("batch line %d: expected identity<TAB>secret or identity:secret", lineNo)
		}
		cred := model.NewCredential(identity, secret)
		if err := cred.Validate(); err != nil {
			return nil, fmt.Errorf("batch line %d: %w", lineNo, err)
		}
		creds = append(creds, cred)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	if len(creds) == 0 {
		return nil, errors.New("batch file contains no credentials")
	}
	return creds, nil
}

// runBatchCapture captures every credential and prints one result line per
// identity in input order.
func runBatchCapture(
	ctx context.Context,
	w io.Writer,
	orch *scrape.Orchestrator,
	cfg *config.Config,
	creds []model.Credential,
	logger *slog.Logger,
) error {
	bp := pipeline.NewBatchProcessor(
		func(ctx context.Context, cred model.Credential) (string, error) {
			return orch.RunScrape(ctx, cred.Identity, cred.Secret, "")
		},
		pipeline.WithKeyFunc(func(cred model.Credential) (string, error) {
			return orch.Store().PathFor(cred.Identity, model.ArtifactKind(cfg.ArtifactKind))
		}),
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithStartRate(cfg.RateLimit, cfg.RateBurst),
		pipeline.WithBatchLogger(logger),
	)

	results, err := bp.ProcessBatch(ctx, creds)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			reportError(r.Err, r.Identity)
			fmt.Fprintf(w, "%s\tFAILED\t%s\t%v\n", r.Identity, model.KindOf(r.Err), r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\tOK\t%s\n", r.Identity, r.ArtifactPath)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d captures failed", ErrBatchFailed, failed, len(results))
	}
	return nil
}

// streamArtifact copies the artifact to w and removes it once delivered.
func streamArtifact(w io.Writer, store *artifact.Store, path string) error {
	f, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	_, copyErr := io.Copy(w, f)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to write artifact: %w", copyErr)
	}
	if closeErr != nil {
		return closeErr
	}
	return store.Remove(path)
}
