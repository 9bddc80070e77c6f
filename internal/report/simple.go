package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/playcrawl/playcrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: Counters are formatted with golang.org/x/text/message
// so large visit and download counts get digit grouping ("12,345" rather
// than "12345"), which matters once crawls run with big budgets.
type SimpleWriter struct {
	baseWriter

	// printer formats numbers with locale-aware digit grouping.
	printer *message.Printer

	// verbose enables the per-entry visit listing.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-entry visit listing in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl report as plain text.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString("Crawl Report\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Run ID:       %s\n", report.RunID)
	fmt.Fprintf(&sb, "Seed:         %s\n", report.Seed)
	fmt.Fprintf(&sb, "Started:      %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Elapsed:      %s\n", report.Elapsed.Round(0))
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	w.printer.Fprintf(&sb, "Visited:      %d\n", report.VisitedCount())
	w.printer.Fprintf(&sb, "Abandoned:    %d\n", report.Abandoned)
	w.printer.Fprintf(&sb, "Skipped paid: %d\n", report.SkippedPaid)
	w.printer.Fprintf(&sb, "Downloaded:   %d\n", report.Downloaded)
	if report.Stopped {
		sb.WriteString("Status:       stopped early (cancelled)\n")
	} else {
		sb.WriteString("Status:       complete\n")
	}

	if w.verbose && report.VisitedCount() > 0 {
		sb.WriteString(strings.Repeat("-", 60) + "\n")
		sb.WriteString("Visited entries:\n")
		for i, docID := range report.Visited {
			fmt.Fprintf(&sb, "  %3d. %s\n", i+1, docID)
		}
	}
	sb.WriteString(strings.Repeat("=", 60) + "\n")

	return w.output.Write([]byte(sb.String()))
}
