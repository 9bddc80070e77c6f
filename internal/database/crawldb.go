package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/playcrawl/playcrawl/internal/model"
)

// CrawlDB provides SQLite-based storage for crawl data. It manages the
// connection pool and exposes methods for the operations the crawler and
// the CLI need.
//
// Design decision: We use a single database file across all runs rather
// than one file per run. The visited set accumulated over previous runs is
// what makes re-crawls idempotent, and a single file keeps that set in one
// place.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, "playcrawl.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; the crawler is sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Entries store the latest details snapshot per doc id
	CREATE TABLE IF NOT EXISTS entries (
		doc_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		creator TEXT,
		version_code INTEGER,
		version_string TEXT,
		price_micros INTEGER DEFAULT 0,
		currency_code TEXT,
		upload_date TEXT,
		num_downloads TEXT,
		installation_size INTEGER,
		contains_ads INTEGER DEFAULT 0,
		content_rating TEXT,
		star_rating REAL,
		ratings_count INTEGER,
		entry_json TEXT NOT NULL,
		enrichment_json TEXT,
		related_json TEXT,
		visited_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_creator ON entries(creator);
	CREATE INDEX IF NOT EXISTS idx_entries_visited ON entries(visited_at);

	-- Reviews store the review snapshot fetched with the entry
	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id TEXT NOT NULL,
		document_version TEXT,
		timestamp_msec INTEGER,
		star_rating INTEGER,
		title TEXT,
		comment TEXT,
		author_id TEXT,
		author_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_doc ON reviews(doc_id);

	-- Crawl runs store one summary row per completed run
	CREATE TABLE IF NOT EXISTS crawl_runs (
		run_id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		elapsed_msec INTEGER,
		visited_count INTEGER,
		abandoned INTEGER,
		skipped_paid INTEGER,
		downloaded INTEGER,
		stopped INTEGER DEFAULT 0,
		visited_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveVisit stores everything collected for one visited entry in a single
// transaction. Re-visiting a doc id replaces the previous snapshot: the
// entry row is upserted and its review set is rewritten, so replaying a
// crawl never duplicates data.
func (cdb *CrawlDB) SaveVisit(ctx context.Context, visit *model.Visit) error {
	if visit == nil || visit.Entry == nil || visit.Entry.DocID == "" {
		return fmt.Errorf("visit has no entry to save")
	}
	entry := visit.Entry

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}

	var enrichmentJSON []byte
	if visit.Enrichment != nil {
		enrichmentJSON, err = json.Marshal(visit.Enrichment)
		if err != nil {
			return fmt.Errorf("failed to serialize enrichment: %w", err)
		}
	}

	var relatedJSON []byte
	if len(visit.Related) > 0 {
		relatedJSON, err = json.Marshal(visit.Related)
		if err != nil {
			return fmt.Errorf("failed to serialize related stubs: %w", err)
		}
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	upsert := `
	INSERT INTO entries (doc_id, title, creator, version_code, version_string,
		price_micros, currency_code, upload_date, num_downloads, installation_size,
		contains_ads, content_rating, star_rating, ratings_count,
		entry_json, enrichment_json, related_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(doc_id) DO UPDATE SET
		title = excluded.title,
		creator = excluded.creator,
		version_code = excluded.version_code,
		version_string = excluded.version_string,
		price_micros = excluded.price_micros,
		currency_code = excluded.currency_code,
		upload_date = excluded.upload_date,
		num_downloads = excluded.num_downloads,
		installation_size = excluded.installation_size,
		contains_ads = excluded.contains_ads,
		content_rating = excluded.content_rating,
		star_rating = excluded.star_rating,
		ratings_count = excluded.ratings_count,
		entry_json = excluded.entry_json,
		enrichment_json = excluded.enrichment_json,
		related_json = excluded.related_json,
		visited_at = CURRENT_TIMESTAMP
	`

	if _, err := tx.ExecContext(ctx, upsert,
		entry.DocID,
		entry.Title,
		entry.Creator,
		entry.VersionCode,
		entry.VersionString,
		entry.PriceMicros,
		entry.CurrencyCode,
		entry.UploadDate,
		entry.NumDownloads,
		entry.InstallationSize,
		entry.ContainsAds,
		entry.ContentRating,
		entry.Rating.StarRating,
		entry.Rating.RatingsCount,
		string(entryJSON),
		nullableString(enrichmentJSON),
		nullableString(relatedJSON),
	); err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE doc_id = ?`, entry.DocID); err != nil {
		return fmt.Errorf("failed to clear previous reviews: %w", err)
	}
	for i := range visit.Reviews {
		review := &visit.Reviews[i]
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO reviews (doc_id, document_version, timestamp_msec, star_rating, title, comment, author_id, author_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.DocID,
			review.DocumentVersion,
			review.TimestampMsec,
			review.StarRating,
			review.Title,
			review.Comment,
			review.AuthorID,
			review.AuthorName,
		); err != nil {
			return fmt.Errorf("failed to insert review: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit visit: %w", err)
	}
	return nil
}

// GetEntry retrieves the stored snapshot for a doc id.
// Returns nil without error when the entry was never visited.
func (cdb *CrawlDB) GetEntry(ctx context.Context, docID string) (*model.Entry, error) {
	var entryJSON string
	err := cdb.db.QueryRowContext(ctx,
		`SELECT entry_json FROM entries WHERE doc_id = ?`, docID).Scan(&entryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	var entry model.Entry
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return nil, fmt.Errorf("failed to parse entry: %w", err)
	}
	return &entry, nil
}

// GetReviews retrieves the stored reviews for a doc id, newest first.
func (cdb *CrawlDB) GetReviews(ctx context.Context, docID string) ([]model.Review, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT document_version, timestamp_msec, star_rating, title, comment, author_id, author_name
	FROM reviews
	WHERE doc_id = ?
	ORDER BY timestamp_msec DESC`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(
			&r.DocumentVersion,
			&r.TimestampMsec,
			&r.StarRating,
			&r.Title,
			&r.Comment,
			&r.AuthorID,
			&r.AuthorName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}

	return reviews, rows.Err()
}

// VisitedDocIDs returns every doc id that has a stored snapshot. The
// crawler seeds its visited set with this list so entries stored by
// previous runs are not fetched again.
func (cdb *CrawlDB) VisitedDocIDs(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT doc_id FROM entries ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list visited doc ids: %w", err)
	}
	defer rows.Close()

	var docIDs []string
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("failed to scan doc id: %w", err)
		}
		docIDs = append(docIDs, docID)
	}

	return docIDs, rows.Err()
}

// SaveCrawlRun records the summary of one completed crawl run.
func (cdb *CrawlDB) SaveCrawlRun(ctx context.Context, report *model.CrawlReport) error {
	visitedJSON, err := json.Marshal(report.Visited)
	if err != nil {
		return fmt.Errorf("failed to serialize visited list: %w", err)
	}

	query := `
	INSERT INTO crawl_runs (run_id, seed, started_at, elapsed_msec,
		visited_count, abandoned, skipped_paid, downloaded, stopped, visited_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		elapsed_msec = excluded.elapsed_msec,
		visited_count = excluded.visited_count,
		abandoned = excluded.abandoned,
		skipped_paid = excluded.skipped_paid,
		downloaded = excluded.downloaded,
		stopped = excluded.stopped,
		visited_json = excluded.visited_json
	`

	_, err = cdb.db.ExecContext(ctx, query,
		report.RunID,
		report.Seed,
		report.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		report.Elapsed.Milliseconds(),
		report.VisitedCount(),
		report.Abandoned,
		report.SkippedPaid,
		report.Downloaded,
		report.Stopped,
		string(visitedJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}
	return nil
}

// CrawlRunSummary is the per-run metadata shown by the run listing.
type CrawlRunSummary struct {
	// RunID uniquely identifies the run.
	RunID string

	// Seed is the doc id the run started from.
	Seed string

	// StartedAt is when the run began.
	StartedAt time.Time

	// Elapsed is the total run duration.
	Elapsed time.Duration

	// VisitedCount, Abandoned, SkippedPaid, and Downloaded mirror the
	// crawl report counters.
	VisitedCount int
	Abandoned    int
	SkippedPaid  int
	Downloaded   int

	// Stopped is true when the run ended early due to cancellation.
	Stopped bool
}

// ListCrawlRuns returns run summaries, newest first.
func (cdb *CrawlDB) ListCrawlRuns(ctx context.Context) ([]CrawlRunSummary, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT run_id, seed, started_at, elapsed_msec, visited_count, abandoned, skipped_paid, downloaded, stopped
	FROM crawl_runs
	ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	defer rows.Close()

	var results []CrawlRunSummary
	for rows.Next() {
		var s CrawlRunSummary
		var startedAt string
		var elapsedMsec int64

		if err := rows.Scan(
			&s.RunID,
			&s.Seed,
			&startedAt,
			&elapsedMsec,
			&s.VisitedCount,
			&s.Abandoned,
			&s.SkippedPaid,
			&s.Downloaded,
			&s.Stopped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}

		s.StartedAt = parseTimestamp(startedAt)
		s.Elapsed = time.Duration(elapsedMsec) * time.Millisecond
		results = append(results, s)
	}

	return results, rows.Err()
}

// nullableString converts an optional JSON column value.
func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
