// Package report renders crawl run summaries in the formats the CLI
// offers: plain text for the terminal, Markdown for sharing, and JSON for
// tool integration.
package report
