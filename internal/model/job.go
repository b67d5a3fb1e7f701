package model

import (
	"fmt"
	"time"
)

// JobState is a state of the per-job state machine:
//
//	INIT -> AUTHENTICATING -> AUTHENTICATED -> CAPTURING -> DONE
//	                       |                             -> CAPTURE_FAILED
//	                       -> REJECTED
//	                       -> AUTH_ERROR
//
// ABORTED is entered from any non-terminal state when the run is cut short
// by the executor (crash, timeout, cancellation).
type JobState string

// Job states.
const (
	StateInit           JobState = "INIT"
	StateAuthenticating JobState = "AUTHENTICATING"
	StateAuthenticated  JobState = "AUTHENTICATED"
	StateCapturing      JobState = "CAPTURING"
	StateDone           JobState = "DONE"
	StateCaptureFailed  JobState = "CAPTURE_FAILED"
	StateRejected       JobState = "REJECTED"
	StateAuthError      JobState = "AUTH_ERROR"
	StateAborted        JobState = "ABORTED"
)

// IsTerminal reports whether no further transition is possible from s.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateDone, StateCaptureFailed, StateRejected, StateAuthError, StateAborted:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether s is the only successful leaf.
func (s JobState) IsSuccessful() bool {
	return s == StateDone
}

func isAllowedTransition(from, to JobState) bool {
	if to == StateAborted {
		return !from.IsTerminal()
	}
	switch from {
	case StateInit:
		return to == StateAuthenticating
	case StateAuthenticating:
		return to == StateAuthenticated || to == StateRejected || to == StateAuthError
	case StateAuthenticated:
		return to == StateCapturing
	case StateCapturing:
		return to == StateDone || to == StateCaptureFailed
	default:
		return false
	}
}

// CrawlJob is the unit of work for one authenticate-then-capture run.
type CrawlJob struct {
	ID         string
	Credential Credential
	TargetURL  string
	Kind       ArtifactKind

	State JobState
	Err   error

	Auth     *AuthResult
	Artifact *CaptureArtifact

	StartedAt  time.Time
	FinishedAt time.Time
}

// NewCrawlJob creates a job in StateInit.
func NewCrawlJob(id string, cred Credential, targetURL string, kind ArtifactKind) *CrawlJob {
	return &CrawlJob{
		ID:         id,
		Credential: cred,
		TargetURL:  targetURL,
		Kind:       kind,
		State:      StateInit,
		StartedAt:  time.Now(),
	}
}

// Transition moves the job from the expected state to the next one.
// The caller passes from so that an out-of-order step is observable.
func (j *CrawlJob) Transition(from, to JobState) error {
	if j.State != from {
		return fmt.Errorf("invalid transition for job %s: expected %s, got %s", j.ID, from, j.State)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for job %s: %s -> %s", j.ID, from, to)
	}
	j.State = to
	if to.IsTerminal() {
		j.FinishedAt = time.Now()
	}
	return nil
}

// Fail moves the job into a terminal failure state and records err.
func (j *CrawlJob) Fail(from, to JobState, err error) error {
	if terr := j.Transition(from, to); terr != nil {
		return terr
	}
	j.Err = err
	return nil
}

// Duration returns how long the job ran, or has been running.
func (j *CrawlJob) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return time.Since(j.StartedAt)
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
