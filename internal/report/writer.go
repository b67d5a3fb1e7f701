package report

import (
	"errors"
	"fmt"
	"io"
)

// Output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for history output.
//
// Design decision: We use an interface to allow different output formats
// and destinations with the same API.
type Writer interface {
	// Write outputs the history to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(h *History) (int, error)
}

// New returns the Writer for format.
func New(format string, output io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q (use %s, %s or %s)", ErrUnknownFormat, format, FormatText, FormatJSON, FormatMarkdown)
	}
}

// MultiWriter writes to multiple Writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the history to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(h *History) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(h)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
