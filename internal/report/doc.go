// Package report renders the capture run history.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with tables and an outcome chart
//
// Design decision: History is built from ledger rows once and every writer
// renders the same value, so formats cannot disagree about counts.
package report
