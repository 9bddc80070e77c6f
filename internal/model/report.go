package model

import "time"

// CrawlReport summarizes one crawl run. It is what the operator sees at the
// end of a run and what the database records per run.
type CrawlReport struct {
	// RunID uniquely identifies the crawl run.
	RunID string `json:"run_id"`

	// Seed is the doc id the traversal started from.
	Seed string `json:"seed"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the total wall-clock duration of the crawl.
	Elapsed time.Duration `json:"elapsed"`

	// Visited lists the doc ids visited during this run, in visit order.
	Visited []string `json:"visited"`

	// Abandoned counts branches dropped after the retry also failed.
	Abandoned int `json:"abandoned"`

	// SkippedPaid counts entries whose download was skipped because they
	// require payment.
	SkippedPaid int `json:"skipped_paid"`

	// Downloaded counts binaries successfully written to disk.
	Downloaded int `json:"downloaded"`

	// Stopped is true when the crawl ended early due to cancellation
	// rather than exhausting the graph or the visit budget.
	Stopped bool `json:"stopped,omitempty"`
}

// NewCrawlReport creates a CrawlReport for the given run id and seed,
// stamped with the current time.
func NewCrawlReport(runID, seed string) *CrawlReport {
	return &CrawlReport{
		RunID:     runID,
		Seed:      seed,
		StartedAt: time.Now(),
		Visited:   make([]string, 0),
	}
}

// VisitedCount returns the number of entries visited in this run.
func (r *CrawlReport) VisitedCount() int {
	return len(r.Visited)
}
