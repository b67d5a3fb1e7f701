package report

import (
	"sort"
	"time"

	"github.com/nao1215/portalcapture/internal/database"
	"github.com/nao1215/portalcapture/internal/model"
)

// History is a view over recorded runs.
type History struct {
	// GeneratedAt is when the view was built.
	GeneratedAt time.Time `json:"generated_at"`

	// Identity is the identity filter, empty for all identities.
	Identity string `json:"identity,omitempty"`

	// Runs are newest first.
	Runs []Entry `json:"runs"`

	// Outcomes counts runs by final state.
	Outcomes map[model.JobState]int `json:"outcomes"`
}

// Entry is one run as shown in a report.
type Entry struct {
	ID           string             `json:"id"`
	Identity     string             `json:"identity"`
	Kind         model.ArtifactKind `json:"kind"`
	TargetURL    string             `json:"target_url"`
	State        model.JobState     `json:"state"`
	ErrorKind    model.ErrorKind    `json:"error_kind,omitempty"`
	Error        string             `json:"error,omitempty"`
	ArtifactPath string             `json:"artifact_path,omitempty"`
	Digest       string             `json:"digest,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	DurationMS   int64              `json:"duration_ms"`
}

// NewHistory builds a History from ledger runs.
func NewHistory(identity string, runs []database.Run) *History {
	h := &History{
		GeneratedAt: time.Now(),
		Identity:    identity,
		Runs:        make([]Entry, 0, len(runs)),
		Outcomes:    make(map[model.JobState]int),
	}
	for i := range runs {
		r := &runs[i]
		h.Runs = append(h.Runs, Entry{
			ID:           r.ID,
			Identity:     r.Identity,
			Kind:         r.Kind,
			TargetURL:    r.TargetURL,
			State:        r.State,
			ErrorKind:    r.ErrorKind,
			Error:        r.ErrorMessage,
			ArtifactPath: r.ArtifactPath,
			Digest:       r.Digest,
			StartedAt:    r.StartedAt,
			DurationMS:   r.Duration().Milliseconds(),
		})
		h.Outcomes[r.State]++
	}
	return h
}

// Total returns the number of runs.
func (h *History) Total() int {
	return len(h.Runs)
}

// Succeeded returns the number of successful runs.
func (h *History) Succeeded() int {
	return h.Outcomes[model.StateDone]
}

// Rejected returns the number of runs the portal refused.
func (h *History) Rejected() int {
	return h.Outcomes[model.StateRejected]
}

// Failed returns the number of runs that ended in a system failure.
func (h *History) Failed() int {
	n := 0
	for s, c := range h.Outcomes {
		if s.IsTerminal() && !s.IsSuccessful() && s != model.StateRejected {
			n += c
		}
	}
	return n
}

// stateCount is an outcome with its count.
type stateCount struct {
	State model.JobState
	Count int
}

// sortedOutcomes returns the outcome counts, largest first.
func (h *History) sortedOutcomes() []stateCount {
	out := make([]stateCount, 0, len(h.Outcomes))
	for s, n := range h.Outcomes {
		out = append(out, stateCount{State: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].State < out[j].State
	})
	return out
}
