package isolate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

// WorkerCommand is the hidden subcommand that runs a single job.
const WorkerCommand = "worker"

// defaultWaitDelay is how long pipes may stay open after the worker was
// killed before they are closed forcibly.
const defaultWaitDelay = 2 * time.Second

// Executor runs jobs in child processes.
type Executor struct {
	path      string
	args      []string
	env       []string
	timeout   time.Duration
	waitDelay time.Duration
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCommand sets the worker executable and its arguments.
// The default is the running binary with the worker subcommand.
func WithCommand(path string, args ...string) ExecutorOption {
	return func(e *Executor) {
		e.path = path
		e.args = args
	}
}

// WithEnv adds environment variables for the worker.
func WithEnv(env ...string) ExecutorOption {
	return func(e *Executor) {
		e.env = append(e.env, env...)
	}
}

// WithTimeout bounds a single run, including process startup.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger that receives the worker's log lines.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		timeout:   config.DefaultJobTimeout,
		waitDelay: defaultWaitDelay,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.path == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate own executable: %w", err)
		}
		e.path = self
		e.args = []string{WorkerCommand}
	}
	return e, nil
}

// Run executes req in a fresh worker process and blocks until the worker
// reports its outcome, exits, or the timeout expires.
//
// The returned error is the worker's relayed error, which matches the
// original taxonomy sentinel with errors.Is, or an error wrapping
// model.ErrExecution when the worker could not deliver an outcome. The
// outcome is returned whenever one was received.
func (e *Executor) Run(ctx context.Context, req *Request) (*Outcome, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode worker request: %w", model.ErrExecution, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.path, e.args...) //nolint:gosec // path is our own binary or a test override
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Stdin = bytes.NewReader(payload)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExecution, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExecution, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start worker: %w", model.ErrExecution, err)
	}
	logger := e.logger.With("job", req.JobID, "pid", cmd.Process.Pid)
	logger.Debug("worker started")

	var (
		outBuf bytes.Buffer
		g      errgroup.Group
	)
	g.Go(func() error {
		_, err := io.Copy(&outBuf, io.LimitReader(stdout, maxOutcomeSize))
		// Drain the rest so the worker never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stdout) //nolint:errcheck // drain only
		return err
	})
	g.Go(func() error {
		return forwardLogs(stderr, logger)
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()
	logger.Debug("worker exited", "duration", time.Since(start), "exit", exitDescription(waitErr))

	out, decodeErr := decodeOutcome(&outBuf)
	if decodeErr == nil {
		if waitErr != nil {
			logger.Debug("worker reported an outcome but exited abnormally", "error", waitErr)
		}
		return out, out.Err()
	}

	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: run cancelled: %w", model.ErrExecution, ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: worker did not finish within %s", model.ErrExecution, e.timeout)
	case pumpErr != nil && !errors.Is(pumpErr, os.ErrClosed):
		return nil, fmt.Errorf("%w: failed to read worker output: %w", model.ErrExecution, pumpErr)
	case waitErr != nil:
		return nil, fmt.Errorf("%w: %w (%s)", model.ErrExecution, decodeErr, exitDescription(waitErr))
	default:
		return nil, fmt.Errorf("%w: %w", model.ErrExecution, decodeErr)
	}
}

// forwardLogs relays the worker's stderr lines to logger at debug level.
// JSON log records are unpacked so their attributes stay structured.
func forwardLogs(r io.Reader, logger *slog.Logger) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			logWorkerLine(logger, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func logWorkerLine(logger *slog.Logger, line string) {
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		logger.Debug("worker output", "line", line)
		return
	}

	msg, _ := record[slog.MessageKey].(string)
	level, _ := record[slog.LevelKey].(string)
	delete(record, slog.MessageKey)
	delete(record, slog.LevelKey)
	delete(record, slog.TimeKey)

	args := make([]any, 0, 2+2*len(record))
	args = append(args, "worker_level", level)
	for k, v := range record {
		args = append(args, k, v)
	}
	logger.Debug("worker: "+msg, args...)
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.String()
	}
	return err.Error()
}
