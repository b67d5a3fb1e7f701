package isolate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nao1215/portalcapture/internal/model"
)

// JobFunc performs one job inside the worker process.
// It returns a complete outcome; a returned error is reported as a failure.
type JobFunc func(ctx context.Context, req *Request) (*Outcome, error)

// Serve is the worker side of the protocol. It reads one Request from r,
// calls run and writes exactly one Outcome to w, also when the request is
// malformed or run panics. It returns an error only when the outcome could
// not be written.
func Serve(ctx context.Context, r io.Reader, w io.Writer, run JobFunc) error {
	out := serve(ctx, r, run)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("failed to write outcome: %w", err)
	}
	return nil
}

func serve(ctx context.Context, r io.Reader, run JobFunc) (out *Outcome) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return FailureOutcome("", model.StateAborted,
			fmt.Errorf("%w: malformed worker request: %w", model.ErrExecution, err))
	}
	if req.Config == nil {
		return FailureOutcome(req.JobID, model.StateAborted,
			fmt.Errorf("%w: worker request has no configuration", model.ErrExecution))
	}

	defer func() {
		if p := recover(); p != nil {
			out = FailureOutcome(req.JobID, model.StateAborted,
				fmt.Errorf("%w: worker panic: %v", model.ErrExecution, p))
		}
	}()

	res, err := run(ctx, &req)
	switch {
	case err != nil:
		state := model.StateAborted
		if res != nil && res.State != "" {
			state = res.State
		}
		return FailureOutcome(req.JobID, state, err)
	case res == nil:
		return FailureOutcome(req.JobID, model.StateAborted,
			fmt.Errorf("%w: job returned no outcome", model.ErrExecution))
	default:
		if res.JobID == "" {
			res.JobID = req.JobID
		}
		return res
	}
}
