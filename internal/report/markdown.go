package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/playcrawl/playcrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.RunID + "`"},
			{"Seed", "`" + report.Seed + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", report.Elapsed.Round(0).String()},
			{"Status", w.statusText(report)},
		},
	})
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Count"},
		Rows: [][]string{
			{"Visited", strconv.Itoa(report.VisitedCount())},
			{"Abandoned", strconv.Itoa(report.Abandoned)},
			{"Skipped (paid)", strconv.Itoa(report.SkippedPaid)},
			{"Downloaded", strconv.Itoa(report.Downloaded)},
		},
	})
	md.PlainText("")

	if report.VisitedCount() > 0 {
		md.H2("Visited Entries")
		md.PlainText("")
		items := make([]string, 0, report.VisitedCount())
		for _, docID := range report.Visited {
			items = append(items, "`"+docID+"`")
		}
		md.OrderedList(items...)
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}

// statusText returns the status cell text for the header table.
func (w *MarkdownWriter) statusText(report *model.CrawlReport) string {
	if report.Stopped {
		return "⚠️ Stopped early (partial results)"
	}
	return "✅ Complete"
}
