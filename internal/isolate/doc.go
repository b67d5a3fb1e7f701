// Package isolate runs each capture in a disposable child process.
//
// The browser and network runtimes used by a capture keep global state
// that must not be shared between runs, so every job gets a fresh process:
// the parent re-executes its own binary with a hidden worker subcommand,
// sends the job as JSON on stdin and blocks until the child prints exactly
// one Outcome as JSON on stdout. The child's stderr carries its logs and is
// forwarded to the parent logger.
//
// The child runs in its own process group under a deadline. On timeout or
// cancellation the whole group is killed. A child that exits without an
// outcome, or whose outcome cannot be decoded, is reported as
// model.ErrExecution; success is never assumed.
//
// Secrets travel only through the stdin pipe, never through argv or the
// environment, so they do not show up in process listings.
package isolate
