package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/portalcapture/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, job *model.CrawlJob) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, job *model.CrawlJob) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, job)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newJob() *model.CrawlJob {
	return model.NewCrawlJob("job-1", model.NewCredential("student001", "pw123"), "http://portal/tests", model.KindTests)
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("creates empty pipeline", func(t *testing.T) {
		t.Parallel()
		if p := New(); p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "first"})
		p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

		names := p.StepNames()
		expected := []string{"first", "second", "third"}
		if len(names) != len(expected) {
			t.Fatalf("expected %d steps, got %d", len(expected), len(names))
		}
		for i, name := range names {
			if name != expected[i] {
				t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
			}
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		order := make([]string, 0, 2)
		p := New()
		p.AddStep(&mockStep{name: "step-1", doFunc: func(context.Context, *model.CrawlJob) error {
			order = append(order, "step-1")
			return nil
		}})
		p.AddStep(&mockStep{name: "step-2", doFunc: func(context.Context, *model.CrawlJob) error {
			order = append(order, "step-2")
			return nil
		}})

		if err := p.Execute(t.Context(), newJob()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 2 || order[0] != "step-1" || order[1] != "step-2" {
			t.Errorf("wrong execution order: %v", order)
		}
	})

	t.Run("stops on first error and aborts the job", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		second := &mockStep{name: "should-not-run"}

		p := New()
		p.AddStep(&mockStep{name: "failing", doFunc: func(context.Context, *model.CrawlJob) error {
			return expectedErr
		}})
		p.AddStep(second)

		job := newJob()
		err := p.Execute(t.Context(), job)
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
		if second.callCount != 0 {
			t.Error("second step should not have been called")
		}
		if job.State != model.StateAborted || !errors.Is(job.Err, expectedErr) {
			t.Errorf("expected ABORTED with error, got %s %v", job.State, job.Err)
		}
	})

	t.Run("keeps the terminal state set by a step", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "rejecting", doFunc: func(_ context.Context, job *model.CrawlJob) error {
			_ = job.Transition(model.StateInit, model.StateAuthenticating)
			_ = job.Fail(model.StateAuthenticating, model.StateRejected, model.ErrAuthenticationFailed)
			return model.ErrAuthenticationFailed
		}})

		job := newJob()
		_ = p.Execute(t.Context(), job)
		if job.State != model.StateRejected {
			t.Errorf("expected REJECTED, got %s", job.State)
		}
	})

	t.Run("cancelled context aborts before the next step", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		step := &mockStep{name: "never"}
		p := New()
		p.AddStep(step)

		job := newJob()
		err := p.Execute(ctx, job)
		if !errors.Is(err, model.ErrExecution) || !errors.Is(err, context.Canceled) {
			t.Errorf("expected ErrExecution wrapping context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not run after cancellation")
		}
		if job.State != model.StateAborted {
			t.Errorf("expected ABORTED, got %s", job.State)
		}
	})
}
