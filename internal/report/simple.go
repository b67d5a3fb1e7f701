package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/portalcapture/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds error messages and digests to each run.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the history in human-readable format.
func (w *SimpleWriter) Write(h *History) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, h)
	w.writeSummary(&sb, h)
	w.writeRuns(&sb, h)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, h *History) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("CAPTURE HISTORY\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	if h.Identity != "" {
		fmt.Fprintf(sb, "Identity:  %s\n", h.Identity)
	}
	fmt.Fprintf(sb, "Generated: %s\n\n", h.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, h *History) {
	fmt.Fprintf(sb, "  Runs:      %d\n", h.Total())
	fmt.Fprintf(sb, "  Succeeded: %d\n", h.Succeeded())
	fmt.Fprintf(sb, "  Rejected:  %d\n", h.Rejected())
	fmt.Fprintf(sb, "  Failed:    %d\n\n", h.Failed())
}

func (w *SimpleWriter) writeRuns(sb *strings.Builder, h *History) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")

	if len(h.Runs) == 0 {
		sb.WriteString("  No runs recorded\n")
		return
	}

	for _, e := range h.Runs {
		fmt.Fprintf(sb, "[%s] %s  %-12s %-10s %-15s %s\n",
			indicator(e),
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.Identity,
			e.Kind,
			e.State,
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
		)
		if e.ArtifactPath != "" {
			fmt.Fprintf(sb, "    Artifact: %s\n", e.ArtifactPath)
		}
		if w.verbose {
			if e.Error != "" {
				fmt.Fprintf(sb, "    Error:    %s (%s)\n", e.Error, e.ErrorKind)
			}
			if e.Digest != "" {
				fmt.Fprintf(sb, "    SHA3-256: %s\n", e.Digest)
			}
		}
	}
}

// indicator returns a short marker for a run outcome.
func indicator(e Entry) string {
	switch {
	case e.State.IsSuccessful():
		return "ok"
	case e.ErrorKind == model.ErrorKindAuthentication:
		return "no"
	case !e.State.IsTerminal():
		return ".."
	default:
		return "!!"
	}
}
