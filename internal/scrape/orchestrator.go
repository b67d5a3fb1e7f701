package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/portalcapture/internal/artifact"
	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/database"
	"github.com/nao1215/portalcapture/internal/isolate"
	"github.com/nao1215/portalcapture/internal/metrics"
	"github.com/nao1215/portalcapture/internal/model"
)

// Runner runs one job in an isolated worker. isolate.Executor implements it.
type Runner interface {
	Run(ctx context.Context, req *isolate.Request) (*isolate.Outcome, error)
}

// Ledger records runs. database.RunDB implements it.
type Ledger interface {
	StartRun(ctx context.Context, run *database.Run) error
	FinishRun(ctx context.Context, run *database.Run) error
}

// Orchestrator submits capture jobs to a Runner.
//
// Design decision: the orchestrator never touches the portal or the render
// service itself. All network work happens in the worker, and the
// orchestrator only trusts an artifact it can see on disk at the path it
// derived for the identity.
type Orchestrator struct {
	cfg     *config.Config
	runner  Runner
	store   *artifact.Store
	ledger  Ledger
	metrics *metrics.Recorder
	logger  *slog.Logger
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLedger records every run in l.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) {
		o.ledger = l
	}
}

// WithMetrics observes every run with r and flushes it afterwards.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator replaces the job ID generator.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// New creates an Orchestrator for cfg. The storage directory is made
// absolute so that the worker writes exactly where the orchestrator looks.
func New(cfg *config.Config, runner Runner, opts ...Option) *Orchestrator {
	c := *cfg
	if abs, err := filepath.Abs(c.StorageDir); err == nil {
		c.StorageDir = abs
	}

	o := &Orchestrator{
		cfg:    &c,
		runner: runner,
		store:  artifact.NewStore(c.StorageDir),
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the artifact store the orchestrator checks results against.
func (o *Orchestrator) Store() *artifact.Store {
	return o.store
}

// RunScrape logs in as identity, captures targetURL and returns the path of
// the stored artifact. An empty targetURL uses the configured target.
//
// The error is the job's error as relayed by the worker: errors.Is matches
// model.ErrNetwork, model.ErrProtocol, model.ErrCaptcha,
// model.ErrAuthenticationFailed, model.ErrRender or model.ErrExecution.
// No artifact is left at the path when an error is returned.
func (o *Orchestrator) RunScrape(ctx context.Context, identity, secret, targetURL string) (string, error) {
	cred := model.NewCredential(identity, secret)
	if err := cred.Validate(); err != nil {
		return "", err
	}
	if targetURL == "" {
		targetURL = o.cfg.TargetURL
	}
	if targetURL == "" {
		return "", config.ErrNoTarget
	}

	kind := model.ArtifactKind(o.cfg.ArtifactKind)
	path, err := o.store.PathFor(cred.Identity, kind)
	if err != nil {
		return "", err
	}

	run := &database.Run{
		ID:        o.newID(),
		Identity:  cred.Identity,
		Kind:      kind,
		TargetURL: targetURL,
		StartedAt: time.Now(),
	}
	logger := o.logger.With("job", run.ID, "credential", cred, "kind", string(kind))
	o.startRun(ctx, run, logger)

	out, err := o.runner.Run(ctx, o.request(run, cred))
	if err == nil {
		err = o.verify(out, path)
	}
	if err != nil {
		if rerr := o.store.Remove(path); rerr != nil {
			logger.Warn("failed to remove artifact of failed run", "path", path, "error", rerr)
		}
	}

	o.finishRun(ctx, run, out, err, logger)
	if err != nil {
		logger.Debug("run failed", "state", string(run.State), "error_kind", string(run.ErrorKind))
		return "", err
	}

	logger.Info("run completed", "path", path, "duration", run.Duration())
	return path, nil
}

// request builds the worker request. The worker gets its own copy of the
// configuration with the target and kind of this run.
func (o *Orchestrator) request(run *database.Run, cred model.Credential) *isolate.Request {
	c := *o.cfg
	c.TargetURL = run.TargetURL
	return &isolate.Request{
		JobID:     run.ID,
		Identity:  cred.Identity,
		Secret:    cred.Secret,
		TargetURL: run.TargetURL,
		Kind:      string(run.Kind),
		Config:    &c,
	}
}

// verify checks that a successful outcome names the expected artifact and
// that the artifact exists.
func (o *Orchestrator) verify(out *isolate.Outcome, path string) error {
	if out == nil || !out.OK {
		return fmt.Errorf("%w: worker returned no successful outcome", model.ErrExecution)
	}
	if filepath.Clean(out.ArtifactPath) != filepath.Clean(path) {
		return fmt.Errorf("%w: worker wrote %s, expected %s", model.ErrExecution, out.ArtifactPath, path)
	}
	if !o.store.Exists(path) {
		return fmt.Errorf("%w: artifact %s is missing after a successful run", model.ErrExecution, path)
	}
	return nil
}

func (o *Orchestrator) startRun(ctx context.Context, run *database.Run, logger *slog.Logger) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.StartRun(ctx, run); err != nil {
		logger.Warn("failed to record run start", "error", err)
	}
}

// finishRun fills in the run's result, stores it and updates metrics.
// Bookkeeping failures are logged and never change the run's result.
func (o *Orchestrator) finishRun(ctx context.Context, run *database.Run, out *isolate.Outcome, err error, logger *slog.Logger) {
	run.FinishedAt = time.Now()
	switch {
	case out != nil && out.State != "":
		run.State = out.State
	case err != nil:
		run.State = model.StateAborted
	default:
		run.State = model.StateDone
	}
	if err != nil {
		if run.State.IsSuccessful() {
			// The worker claimed success but the artifact did not check out.
			run.State = model.StateCaptureFailed
		}
		run.ErrorKind = model.KindOf(err)
		run.ErrorMessage = err.Error()
	} else {
		run.ArtifactPath = out.ArtifactPath
		run.Digest = out.Digest
	}

	if o.ledger != nil {
		if lerr := o.ledger.FinishRun(context.WithoutCancel(ctx), run); lerr != nil {
			logger.Warn("failed to record run result", "error", lerr)
		}
	}
	if o.metrics != nil {
		o.metrics.ObserveRun(run.Kind, err, run.Duration())
		if merr := o.metrics.Flush(); merr != nil {
			logger.Warn("failed to write metrics", "error", merr)
		}
	}
}
