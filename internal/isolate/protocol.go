package isolate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/model"
)

// maxOutcomeSize bounds what is read from the worker's stdout.
const maxOutcomeSize = 1 << 20

// ErrNoOutcome is returned when the worker produced no outcome.
var ErrNoOutcome = errors.New("worker exited without reporting an outcome")

// Request is the job sent to a worker.
type Request struct {
	JobID     string         `json:"job_id"`
	Identity  string         `json:"identity"`
	Secret    string         `json:"secret"`
	TargetURL string         `json:"target_url"`
	Kind      string         `json:"kind"`
	Config    *config.Config `json:"config"`
}

// Credential returns the credential carried by the request.
func (r *Request) Credential() model.Credential {
	return model.NewCredential(r.Identity, r.Secret)
}

// Outcome is the single result a worker reports.
type Outcome struct {
	JobID        string          `json:"job_id"`
	OK           bool            `json:"ok"`
	State        model.JobState  `json:"state"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	Digest       string          `json:"digest,omitempty"`
	ErrorKind    model.ErrorKind `json:"error_kind,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Err rebuilds the worker's error so that errors.Is matches the original
// taxonomy sentinel. It is nil for a successful outcome.
func (o *Outcome) Err() error {
	if o.OK {
		return nil
	}
	kind := o.ErrorKind
	if kind == model.ErrorKindNone {
		kind = model.ErrorKindExecution
	}
	msg := o.Error
	if msg == "" {
		msg = fmt.Sprintf("worker reported failure in state %s", o.State)
	}
	return model.ErrorFromKind(kind, msg)
}

// FailureOutcome builds the outcome for a failed run.
func FailureOutcome(jobID string, state model.JobState, err error) *Outcome {
	return &Outcome{
		JobID:     jobID,
		State:     state,
		ErrorKind: model.KindOf(err),
		Error:     err.Error(),
	}
}

// decodeOutcome reads the first JSON value from the worker's stdout.
func decodeOutcome(r io.Reader) (*Outcome, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxOutcomeSize))
	var out Outcome
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoOutcome
		}
		return nil, fmt.Errorf("malformed worker outcome: %w", err)
	}
	if out.OK && out.ArtifactPath == "" {
		return nil, errors.New("worker reported success without an artifact")
	}
	return &out, nil
}
