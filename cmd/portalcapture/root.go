package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/portalcapture/internal/model"
)

// Exit codes.
const (
	exitFailure            = 1
	exitCredentialRejected = 2
)

// NewRootCmd creates the root command for portalcapture.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portalcapture",
		Short: "Capture authenticated pages of a CAPTCHA-gated portal",
		Long: `portalcapture logs in to a CAPTCHA-gated portal and captures a rendered
snapshot of an authenticated page as a PNG file.

The login handshake (session cookie, captcha hand-off, form submission and
verification) and the headless render run in a fresh worker process for
every capture, so no network or browser state is shared between runs.

A render service is required: set SPLASH_INSTANCE (render.json API) or
use --render-backend cdp with a DevTools websocket endpoint.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: ./portalcapture.yaml or $XDG_CONFIG_HOME/portalcapture/portalcapture.yaml)")
	cmd.PersistentFlags().String("env-file", "",
		"Load environment variables from this file (default: .env when present)")

	// Add subcommands
	cmd.AddCommand(NewCaptureCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewWorkerCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status. Rejected credentials
// get their own status so wrappers can tell them from system trouble.
func exitCode(err error) int {
	if model.IsCredentialFailure(err) {
		return exitCredentialRejected
	}
	return exitFailure
}
