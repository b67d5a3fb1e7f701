package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/portalcapture/internal/database"
	"github.com/nao1215/portalcapture/internal/model"
)

func createTestHistory() *History {
	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	runs := []database.Run{
		{
			ID:           "run-3",
			Identity:     "21bce0042",
			Kind:         model.KindAttendance,
			TargetURL:    "https://portal.example/attendance",
			State:        model.StateDone,
			ArtifactPath: "/var/captures/21bce0042_attendance.png",
			Digest:       "a3f1c2d4e5f60718293a4b5c6d7e8f90a3f1c2d4e5f60718293a4b5c6d7e8f90",
			StartedAt:    start.Add(2 * time.Hour),
			FinishedAt:   start.Add(2*time.Hour + 4*time.Second),
		},
		{
			ID:           "run-2",
			Identity:     "21bce0042",
			Kind:         model.KindAttendance,
			TargetURL:    "https://portal.example/attendance",
			State:        model.StateRejected,
			ErrorKind:    model.ErrorKindAuthentication,
			ErrorMessage: "authentication failed: portal rejected credentials",
			StartedAt:    start.Add(time.Hour),
			FinishedAt:   start.Add(time.Hour + time.Second),
		},
		{
			ID:           "run-1",
			Identity:     "21bce0042",
			Kind:         model.KindTests,
			TargetURL:    "https://portal.example/marks",
			State:        model.StateCaptureFailed,
			ErrorKind:    model.ErrorKindRender,
			ErrorMessage: "render error: splash returned HTTP 504",
			StartedAt:    start,
			FinishedAt:   start.Add(30 * time.Second),
		},
	}
	h := NewHistory("21bce0042", runs)
	h.GeneratedAt = start.Add(3 * time.Hour)
	return h
}

func TestNewHistory(t *testing.T) {
	t.Parallel()

	t.Run("counts outcomes", func(t *testing.T) {
		t.Parallel()

		h := createTestHistory()
		if h.Total() != 3 {
			t.Errorf("Total() = %d, want 3", h.Total())
		}
		if h.Succeeded() != 1 {
			t.Errorf("Succeeded() = %d, want 1", h.Succeeded())
		}
		if h.Rejected() != 1 {
			t.Errorf("Rejected() = %d, want 1", h.Rejected())
		}
		if h.Failed() != 1 {
			t.Errorf("Failed() = %d, want 1", h.Failed())
		}
	})

	t.Run("unfinished runs are not failures", func(t *testing.T) {
		t.Parallel()

		h := NewHistory("", []database.Run{{ID: "x", State: model.StateInit}})
		if h.Failed() != 0 {
			t.Errorf("Failed() = %d, want 0", h.Failed())
		}
		if h.Runs[0].DurationMS != 0 {
			t.Errorf("DurationMS = %d, want 0", h.Runs[0].DurationMS)
		}
	})

	t.Run("keeps run order and durations", func(t *testing.T) {
		t.Parallel()

		h := createTestHistory()
		if h.Runs[0].ID != "run-3" {
			t.Errorf("first run = %q, want run-3", h.Runs[0].ID)
		}
		if h.Runs[2].DurationMS != 30000 {
			t.Errorf("DurationMS = %d, want 30000", h.Runs[2].DurationMS)
		}
	})

	t.Run("sorted outcomes break ties by state", func(t *testing.T) {
		t.Parallel()

		got := createTestHistory().sortedOutcomes()
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if got[0].State != model.StateCaptureFailed || got[1].State != model.StateDone {
			t.Errorf("order = %v", got)
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "", want: "*report.SimpleWriter"},
		{format: FormatText, want: "*report.SimpleWriter"},
		{format: FormatJSON, want: "*report.JSONWriter"},
		{format: FormatMarkdown, want: "*report.MarkdownWriter"},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			w, err := New(tt.format, &bytes.Buffer{})
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Errorf("expected ErrUnknownFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch w.(type) {
			case *SimpleWriter:
				if tt.want != "*report.SimpleWriter" {
					t.Errorf("got SimpleWriter, want %s", tt.want)
				}
			case *JSONWriter:
				if tt.want != "*report.JSONWriter" {
					t.Errorf("got JSONWriter, want %s", tt.want)
				}
			case *MarkdownWriter:
				if tt.want != "*report.MarkdownWriter" {
					t.Errorf("got MarkdownWriter, want %s", tt.want)
				}
			}
		})
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestHistory())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("n = %d, buffer holds %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"CAPTURE HISTORY",
			"Identity:  21bce0042",
			"Runs:      3",
			"Succeeded: 1",
			"Rejected:  1",
			"Failed:    1",
			"Artifact: /var/captures/21bce0042_attendance.png",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("marks each outcome", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"[ok]", "[no]", "[!!]"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("verbose adds errors and digests", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "splash returned HTTP 504 (render)") {
			t.Error("expected output to contain the render error")
		}
		if !strings.Contains(output, "SHA3-256: a3f1c2d4") {
			t.Error("expected output to contain the digest")
		}
	})

	t.Run("non-verbose hides errors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "Error:") {
			t.Error("expected no error lines without verbose")
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(NewHistory("", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No runs recorded") {
			t.Error("expected empty history message")
		}
		if strings.Contains(buf.String(), "Identity:") {
			t.Error("expected no identity line without a filter")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded struct {
			Identity string                 `json:"identity"`
			Runs     []Entry                `json:"runs"`
			Outcomes map[model.JobState]int `json:"outcomes"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Identity != "21bce0042" {
			t.Errorf("identity = %q", decoded.Identity)
		}
		if len(decoded.Runs) != 3 {
			t.Fatalf("runs = %d, want 3", len(decoded.Runs))
		}
		if decoded.Runs[1].ErrorKind != model.ErrorKindAuthentication {
			t.Errorf("error kind = %q", decoded.Runs[1].ErrorKind)
		}
		if decoded.Outcomes[model.StateDone] != 1 {
			t.Errorf("DONE count = %d, want 1", decoded.Outcomes[model.StateDone])
		}
	})

	t.Run("compact output is a single line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected compact JSON followed by one newline")
		}
	})

	t.Run("pretty print indents", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"identity\"") {
			t.Error("expected two space indentation")
		}
	})

	t.Run("omits empty fields", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(NewHistory("", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "\"identity\"") {
			t.Error("expected identity to be omitted")
		}
		if !strings.Contains(buf.String(), "\"runs\":[]") {
			t.Error("expected empty runs array")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "# Capture History for 21bce0042") {
			t.Error("expected output to contain H1 header")
		}
		if !strings.Contains(output, "**Total**") {
			t.Error("expected output to contain the total row")
		}
	})

	t.Run("writes outcome chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "```mermaid") {
			t.Error("expected a mermaid code block")
		}
		if !strings.Contains(output, "Run Outcomes") {
			t.Error("expected the chart title")
		}
	})

	t.Run("warns about failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!WARNING]") {
			t.Error("expected a warning alert")
		}
	})

	t.Run("writes runs table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"## Runs", "`21bce0042`", "✅ DONE", "❌ REJECTED", "a3f1c2d4e5f60..."} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(NewHistory("", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if strings.Contains(output, "```mermaid") {
			t.Error("expected no chart without runs")
		}
		if !strings.Contains(output, "No runs recorded") {
			t.Error("expected empty history message")
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))

	n, err := mw.Write(createTestHistory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != a.Len()+b.Len() {
		t.Errorf("n = %d, want %d", n, a.Len()+b.Len())
	}
	if a.Len() == 0 || b.Len() == 0 {
		t.Error("expected both writers to receive output")
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
