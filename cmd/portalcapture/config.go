package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/nao1215/portalcapture/internal/config"
	applog "github.com/nao1215/portalcapture/internal/log"
	"github.com/nao1215/portalcapture/internal/model"
)

// sentryFlushTimeout bounds how long pending events are sent on exit.
const sentryFlushTimeout = 2 * time.Second

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getStringFlag retrieves a string flag from the command or its parent.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds the configuration from defaults, the config file,
// the .env file and the process environment, in that order. Command flags
// are applied by the caller.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	envFile := getStringFlag(cmd, "env-file")
	if err := config.LoadDotEnv(envFile, envFile != ""); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// Otherwise silently keep the defaults when no file is found.
	explicitPath := getStringFlag(cmd, "config")
	if path := config.FindConfigFile(explicitPath); path != "" {
		cf, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cf.Apply(cfg)
		cfg.ConfigFilePath = path
	} else if explicitPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// Secrets, session tokens and captcha answers are redacted.
func setupLogger(verbose bool) *slog.Logger {
	return applog.NewSecureLogger(os.Stderr, verbose)
}

// initSentry enables error reporting when a DSN is configured and returns
// the function that flushes pending events.
func initSentry(cfg *config.Config, logger *slog.Logger) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     cfg.SentryDSN,
		Release: "portalcapture@" + getVersion(),
	})
	if err != nil {
		logger.Warn("failed to initialize sentry", "error", err)
		return func() {}
	}
	return func() {
		sentry.Flush(sentryFlushTimeout)
	}
}

// reportError sends system failures to sentry. Rejected credentials are
// an expected outcome and are not reported. Without sentry.Init this is a
// no-op.
func reportError(err error, identity string) {
	if err == nil || model.IsCredentialFailure(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_kind", string(model.KindOf(err)))
		if identity != "" {
			scope.SetTag("identity", identity)
		}
		sentry.CaptureException(err)
	})
}

// errUsage marks command line mistakes.
var errUsage = errors.New("usage error")
