package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/playcrawl/playcrawl/internal/model"
	"github.com/playcrawl/playcrawl/internal/protocol"
)

// Client is the catalog protocol surface the crawler consumes.
// *protocol.Session satisfies it; tests substitute a scripted fake.
type Client interface {
	// Details fetches the details snapshot for one entry.
	Details(ctx context.Context, docID string) (*model.Entry, error)

	// Reviews fetches up to count reviews for one entry.
	Reviews(ctx context.Context, docID string, count int) ([]model.Review, error)

	// ResolveDownloadURL returns the binary download URL, or "" when the
	// service declined to provide one.
	ResolveDownloadURL(ctx context.Context, docID string, versionCode int) (string, error)

	// AuthorizePurchase completes the zero-cost purchase of a free entry.
	AuthorizePurchase(ctx context.Context, docID string, versionCode int) (string, error)

	// DownloadBinary streams the binary at url to destPath and reports
	// whether a non-empty file was written.
	DownloadBinary(ctx context.Context, url, destPath string) (bool, error)

	// Related resolves a navigation token into its related-entries list.
	Related(ctx context.Context, navToken string) ([]model.EntryStub, error)
}

// Store persists completed visits.
type Store interface {
	// SaveVisit stores everything collected for one visited entry.
	SaveVisit(ctx context.Context, visit *model.Visit) error
}

// Enricher supplies supplementary fields from outside the binary protocol.
type Enricher interface {
	// Enrich fetches supplementary fields for one entry.
	Enrich(ctx context.Context, docID string) (*model.Enrichment, error)
}

// Crawler walks the related-entries graph depth first from a seed entry.
//
// Design decision: when a node is visited, ALL of its eligible children are
// reserved against the visit budget (marked visited, in list order) before
// the traversal descends into the first of them. This keeps the budget
// allocation local: a node's own related list is honored left to right
// before deeper descendants can consume the remaining budget.
type Crawler struct {
	client   Client
	store    Store
	enricher Enricher
	logger   *slog.Logger

	runID           string
	maxVisits       int
	reviewCount     int
	downloadEnabled bool
	downloadDir     string
	visitDelay      time.Duration
	retryBackoff    time.Duration
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithRunID sets the run identifier stamped on the crawl report.
// The default is a random UUID.
func WithRunID(runID string) Option {
	return func(c *Crawler) { c.runID = runID }
}

// WithMaxVisits bounds how many entries one crawl may visit.
func WithMaxVisits(n int) Option {
	return func(c *Crawler) { c.maxVisits = n }
}

// WithReviewCount sets how many reviews are requested per entry.
func WithReviewCount(n int) Option {
	return func(c *Crawler) { c.reviewCount = n }
}

// WithDownloads enables binary downloads into dir.
func WithDownloads(dir string) Option {
	return func(c *Crawler) {
		c.downloadEnabled = true
		c.downloadDir = dir
	}
}

// WithVisitDelay sets the politeness delay between visits.
func WithVisitDelay(d time.Duration) Option {
	return func(c *Crawler) { c.visitDelay = d }
}

// WithRetryBackoff sets the pause before the single retry of a failed visit.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Crawler) { c.retryBackoff = d }
}

// WithEnricher attaches an enricher consulted once per visit.
func WithEnricher(e Enricher) Option {
	return func(c *Crawler) { c.enricher = e }
}

// WithLogger sets the logger used by the crawler.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// New creates a Crawler over the given protocol client and store.
func New(client Client, store Store, opts ...Option) *Crawler {
	c := &Crawler{
		client:      client,
		store:       store,
		logger:      slog.Default(),
		runID:       uuid.NewString(),
		maxVisits:   1,
		reviewCount: 50,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl runs one traversal from seed. Doc ids in alreadyVisited (typically
// loaded from previous runs) are never visited again and do not count
// against the budget. Cancelling ctx stops the crawl at the next visit
// boundary; the partial report is still returned with Stopped set.
//
// The returned error is non-nil only for authentication loss, which
// invalidates the whole run. Per-entry failures, persistence included, are
// retried once and then abandoned, which the report counts.
func (c *Crawler) Crawl(ctx context.Context, seed string, alreadyVisited []string) (*model.CrawlReport, error) {
	report := model.NewCrawlReport(c.runID, seed)
	defer func() {
		report.Elapsed = time.Since(report.StartedAt)
	}()

	visited := make(map[string]struct{}, len(alreadyVisited)+c.maxVisits)
	for _, docID := range alreadyVisited {
		visited[docID] = struct{}{}
	}

	if _, ok := visited[seed]; ok {
		c.logger.Info("seed already visited in a previous run, nothing to do", "seed", seed)
		return report, nil
	}

	c.logger.Info("starting crawl",
		"run_id", c.runID,
		"seed", seed,
		"max_visits", c.maxVisits,
		"downloads", c.downloadEnabled)

	visited[seed] = struct{}{}
	reserved := 1
	err := c.visit(ctx, seed, visited, &reserved, report)

	c.logger.Info("crawl finished",
		"run_id", c.runID,
		"visited", report.VisitedCount(),
		"abandoned", report.Abandoned,
		"downloaded", report.Downloaded,
		"stopped", report.Stopped)
	return report, err
}

// visit processes one reserved entry and then descends into the children it
// manages to reserve. Returning a non-nil error aborts the whole crawl.
//
// The whole per-entry pipeline (details, reviews, related resolution,
// download, persistence) is wrapped in one retry: a failed attempt is
// repeated once after the backoff, and a failed retry abandons the branch.
// The store's upsert-by-id makes repeating a partially persisted attempt
// safe.
func (c *Crawler) visit(ctx context.Context, docID string, visited map[string]struct{}, reserved *int, report *model.CrawlReport) error {
	if err := ctx.Err(); err != nil {
		report.Stopped = true
		return nil
	}

	// Politeness delay before every visit, the seed included.
	if c.visitDelay > 0 {
		if !c.pause(ctx, c.visitDelay) {
			report.Stopped = true
			return nil
		}
	}

	c.logger.Info("visiting entry", "doc_id", docID)

	result, err := c.visitOnce(ctx, docID)
	if err != nil && isRetryable(err) {
		c.logger.Warn("visit failed, retrying once", "doc_id", docID, "error", err)
		if c.retryBackoff > 0 && !c.pause(ctx, c.retryBackoff) {
			report.Stopped = true
			return nil
		}
		result, err = c.visitOnce(ctx, docID)
	}
	if err != nil {
		var authErr *protocol.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		if ctx.Err() != nil {
			report.Stopped = true
			return nil
		}
		c.logger.Error("abandoning entry after failed retry", "doc_id", docID, "error", err)
		report.Abandoned++
		return nil
	}

	report.Visited = append(report.Visited, docID)
	if result.downloaded {
		report.Downloaded++
	}
	if result.skippedPaid {
		report.SkippedPaid++
	}

	// Reserve eligible children left to right before descending.
	next := make([]string, 0, len(result.related))
	for _, stub := range result.related {
		if stub.DocID == "" {
			continue
		}
		if _, ok := visited[stub.DocID]; ok {
			continue
		}
		if *reserved >= c.maxVisits {
			continue
		}
		visited[stub.DocID] = struct{}{}
		*reserved++
		next = append(next, stub.DocID)
	}

	for _, child := range next {
		if err := c.visit(ctx, child, visited, reserved, report); err != nil {
			return err
		}
		if report.Stopped {
			return nil
		}
	}
	return nil
}

// visitResult is the outcome of one visit attempt. Report counters are
// applied only from the attempt that succeeded, so a retried attempt never
// double-counts its download.
type visitResult struct {
	related     []model.EntryStub
	downloaded  bool
	skippedPaid bool
}

// visitOnce runs one attempt of the per-entry pipeline. Any returned error
// is the attempt failing as a whole; the caller owns the retry.
func (c *Crawler) visitOnce(ctx context.Context, docID string) (*visitResult, error) {
	entry, err := c.client.Details(ctx, docID)
	if err != nil {
		return nil, err
	}

	reviews, err := c.client.Reviews(ctx, docID, c.reviewCount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	var related []model.EntryStub
	if entry.HasRelated() {
		related, err = c.client.Related(ctx, entry.RelatedToken)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve related entries: %w", err)
		}
	}

	// Enrichment comes from outside the protocol; its absence never fails
	// a visit.
	var enrichment *model.Enrichment
	if c.enricher != nil {
		enrichment, err = c.enricher.Enrich(ctx, docID)
		if err != nil {
			c.logger.Warn("enrichment failed", "doc_id", docID, "error", err)
			enrichment = nil
		}
	}

	result := &visitResult{related: related}
	if c.downloadEnabled {
		result.downloaded, result.skippedPaid = c.download(ctx, entry)
	}

	visit := &model.Visit{
		Entry:      entry,
		Reviews:    reviews,
		Related:    related,
		Enrichment: enrichment,
	}
	if err := c.store.SaveVisit(ctx, visit); err != nil {
		return nil, fmt.Errorf("failed to persist visit: %w", err)
	}
	return result, nil
}

// isRetryable reports whether a second attempt could plausibly succeed.
// Rejected authentication ends the run, caller errors cannot change on a
// replay, and a cancelled context means stop; everything else, service
// refusals and decode mismatches included, gets the one-shot retry.
func isRetryable(err error) bool {
	var authErr *protocol.AuthError
	switch {
	case errors.As(err, &authErr),
		errors.Is(err, protocol.ErrMissingVersionCode),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// download obtains the binary for a free entry: authorize the zero-cost
// purchase, then resolve the delivery URL and stream the binary. The
// purchase runs unconditionally; the service treats re-purchasing an entry
// the account already owns as a no-op. Download failures never fail the
// visit.
func (c *Crawler) download(ctx context.Context, entry *model.Entry) (downloaded, skippedPaid bool) {
	if !entry.IsFree() {
		c.logger.Warn("skipping download of paid entry",
			"doc_id", entry.DocID,
			"price_micros", entry.PriceMicros,
			"currency", entry.CurrencyCode)
		return false, true
	}

	if _, err := c.client.AuthorizePurchase(ctx, entry.DocID, entry.VersionCode); err != nil {
		c.logger.Warn("purchase authorization failed", "doc_id", entry.DocID, "error", err)
		return false, false
	}

	url, err := c.client.ResolveDownloadURL(ctx, entry.DocID, entry.VersionCode)
	if err != nil {
		c.logger.Warn("delivery resolution failed", "doc_id", entry.DocID, "error", err)
		return false, false
	}
	if url == "" {
		c.logger.Warn("no download url after purchase", "doc_id", entry.DocID)
		return false, false
	}

	destPath := filepath.Join(c.downloadDir, entry.DocID+".apk")
	ok, err := c.client.DownloadBinary(ctx, url, destPath)
	if err != nil {
		c.logger.Warn("binary download failed", "doc_id", entry.DocID, "error", err)
		return false, false
	}
	if !ok {
		c.logger.Warn("binary download produced no file", "doc_id", entry.DocID)
		return false, false
	}

	c.logger.Info("binary downloaded", "doc_id", entry.DocID, "path", destPath)
	return true, false
}

// pause sleeps for d unless ctx is cancelled first. It reports whether the
// full pause elapsed.
func (c *Crawler) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
