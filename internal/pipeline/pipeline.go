package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/portalcapture/internal/model"
)

// Step is one stage of a capture run.
//
// Design decision: a step moves the job through the states it is
// responsible for and records the failure on the job before returning it.
// The pipeline only stops on error and handles cancellation between steps.
type Step interface {
	// Do executes the step against job.
	Do(ctx context.Context, job *model.CrawlJob) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order and stops at the first failure.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0, 2),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps against job.
//
// Cancellation is checked before each step; a cancelled job is moved to
// ABORTED with an error wrapping model.ErrExecution. The first step error
// stops the run and is returned unchanged. If a step fails without
// recording the error on the job, Execute records it.
func (p *Pipeline) Execute(ctx context.Context, job *model.CrawlJob) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			err := fmt.Errorf("%w: run cancelled before %s: %w", model.ErrExecution, step.Name(), ctx.Err())
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "job", job.ID, "reason", ctx.Err())
			p.abort(job, err)
			return err
		default:
		}

		p.logger.Debug("executing step", "step", step.Name(), "job", job.ID, "state", string(job.State))

		if err := step.Do(ctx, job); err != nil {
			p.logger.Debug("step failed",
				"step", step.Name(),
				"job", job.ID,
				"state", string(job.State),
				"error", err,
			)
			if job.Err == nil {
				job.Err = err
			}
			if !job.State.IsTerminal() {
				p.abort(job, err)
			}
			return err
		}
	}
	return nil
}

// abort moves a non-terminal job to ABORTED.
func (p *Pipeline) abort(job *model.CrawlJob, err error) {
	if job.State.IsTerminal() {
		return
	}
	if ferr := job.Fail(job.State, model.StateAborted, err); ferr != nil {
		p.logger.Error("failed to abort job", "job", job.ID, "error", ferr)
	}
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
