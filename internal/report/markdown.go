package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/portalcapture/internal/model"
)

// MarkdownWriter outputs history in Markdown format.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation with tables, alerts and mermaid charts.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the history in Markdown format.
func (w *MarkdownWriter) Write(h *History) (int, error) {
	md := markdown.NewMarkdown(w.output)

	title := "Capture History"
	if h.Identity != "" {
		title += " for " + h.Identity
	}
	md.H1(title)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Runs"},
		Rows: [][]string{
			{"Succeeded", strconv.Itoa(h.Succeeded())},
			{"Rejected", strconv.Itoa(h.Rejected())},
			{"Failed", strconv.Itoa(h.Failed())},
			{"**Total**", "**" + strconv.Itoa(h.Total()) + "**"},
		},
	})
	md.PlainText("")

	if h.Total() > 0 {
		w.writePieChart(md, h)
	}
	w.writeAlert(md, h)
	w.writeRuns(md, h)

	md.HorizontalRule()
	md.PlainTextf("*Generated %s*", h.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, h *History) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Run Outcomes"),
		piechart.WithShowData(true),
	)
	for _, sc := range h.sortedOutcomes() {
		chart.LabelAndIntValue(string(sc.State), uint64(sc.Count)) //nolint:gosec // counts are non-negative
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, h *History) {
	switch {
	case h.Total() == 0:
		md.Note("No runs recorded yet.")
	case h.Failed() > 0:
		md.Warningf("%d run(s) failed for system reasons (network, captcha, render or worker).", h.Failed())
	case h.Rejected() > 0:
		md.Importantf("%d run(s) were rejected by the portal. Check the credentials.", h.Rejected())
	default:
		md.Tip("All runs succeeded.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, h *History) {
	md.H2("Runs")
	md.PlainText("")

	if len(h.Runs) == 0 {
		md.PlainText("No runs recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(h.Runs))
	for i, e := range h.Runs {
		rows[i] = []string{
			e.StartedAt.Format("2006-01-02 15:04:05"),
			"`" + e.Identity + "`",
			string(e.Kind),
			stateText(e.State),
			orDash(string(e.ErrorKind)),
			orDash(e.ArtifactPath),
			truncateString(orDash(e.Digest), 16),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Started", "Identity", "Kind", "State", "Error", "Artifact", "Digest"},
		Rows:   rows,
	})
	md.PlainText("")
}

func stateText(s model.JobState) string {
	if s.IsSuccessful() {
		return "✅ " + string(s)
	}
	if !s.IsTerminal() {
		return "⏳ " + string(s)
	}
	return "❌ " + string(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
