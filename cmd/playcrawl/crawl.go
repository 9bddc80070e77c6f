package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/playcrawl/playcrawl/internal/config"
	"github.com/playcrawl/playcrawl/internal/crawler"
	"github.com/playcrawl/playcrawl/internal/database"
	logpkg "github.com/playcrawl/playcrawl/internal/log"
	"github.com/playcrawl/playcrawl/internal/model"
	"github.com/playcrawl/playcrawl/internal/protocol"
	"github.com/playcrawl/playcrawl/internal/report"
	"github.com/playcrawl/playcrawl/internal/scrape"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <doc-id>",
		Short: "Crawl the catalog's related-entries graph from a seed entry",
		Long: `Crawl authenticates with the catalog service and walks the related-entries
graph starting from the given doc id. For each visited entry it stores the
details snapshot and reviews, and downloads the binary when the entry is
free and downloads are enabled.

Entries stored by previous runs are skipped, so repeated crawls extend the
collection instead of refetching it.

Examples:
  # Visit a single entry
  playcrawl crawl com.example.app

  # Follow related entries up to 50 visits, without downloading binaries
  playcrawl crawl --iterations 50 --download=false com.example.app

  # Write a markdown summary to a file
  playcrawl crawl -m -o report.md com.example.app

Credentials come from --user/--password/--device-id, the PLAYCRAWL_USER,
PLAYCRAWL_PASSWORD, and PLAYCRAWL_DEVICE_ID environment variables, or a
.env file in the working directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Credential flags
	cmd.Flags().StringP("user", "u", "", "Account email for authentication")
	cmd.Flags().String("password", "", "Account password (prefer PLAYCRAWL_PASSWORD or .env)")
	cmd.Flags().String("device-id", "", "Device identifier sent with every call")

	// Crawl behavior flags
	cmd.Flags().IntP("iterations", "n", config.DefaultMaxIterations,
		"Maximum number of entries to visit")
	cmd.Flags().IntP("reviews", "r", config.DefaultReviewCount,
		"Number of reviews to fetch per entry")
	cmd.Flags().Duration("delay", config.DefaultVisitDelay,
		"Politeness delay between visits")
	cmd.Flags().Duration("retry-backoff", config.DefaultRetryBackoff,
		"Wait before retrying a failed visit")
	cmd.Flags().Bool("download", true,
		"Download the binary of each free visited entry")
	cmd.Flags().Bool("store", true,
		"Persist visits to the local database")
	cmd.Flags().Bool("enrich", true,
		"Scrape the public store page for supplementary fields")
	cmd.Flags().String("download-dir", "",
		"Directory for downloaded binaries (default: XDG data directory)")
	cmd.Flags().String("db-dir", "",
		"Directory holding the SQLite database (default: XDG data directory)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .playcrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	cfg.Verbose = getVerboseFlag(cmd)
	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finishing current visit...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates a structured logger based on verbosity setting.
// Every handler is wrapped so credentials and tokens never reach the log
// output, regardless of level.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := logpkg.NewRedactHandler(slog.NewTextHandler(os.Stderr, opts))
	return slog.New(handler)
}

// buildCrawlConfig creates a Config from cobra command flags, the config
// file, and the environment. Precedence: flags > config file > defaults;
// credentials additionally fall back to the environment and .env.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Seed = args[0]

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Config file first so flags override it.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := file.ApplyTo(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := applyCredentials(cmd, cfg); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("iterations") || cfg.MaxIterations == 0 {
		if cfg.MaxIterations, err = cmd.Flags().GetInt("iterations"); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("reviews") {
		if cfg.ReviewCount, err = cmd.Flags().GetInt("reviews"); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("delay") {
		if cfg.VisitDelay, err = cmd.Flags().GetDuration("delay"); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("retry-backoff") {
		if cfg.RetryBackoff, err = cmd.Flags().GetDuration("retry-backoff"); err != nil {
			return nil, err
		}
	}

	cfg.DownloadEnabled, err = cmd.Flags().GetBool("download")
	if err != nil {
		return nil, err
	}
	cfg.StoreEnabled, err = cmd.Flags().GetBool("store")
	if err != nil {
		return nil, err
	}
	cfg.EnrichEnabled, err = cmd.Flags().GetBool("enrich")
	if err != nil {
		return nil, err
	}

	if dir, err := cmd.Flags().GetString("download-dir"); err != nil {
		return nil, err
	} else if dir != "" {
		cfg.DownloadDir = dir
	}
	if dir, err := cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	} else if dir != "" {
		cfg.DBDir = dir
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}
	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyCredentials resolves credentials from flags, falling back to the
// environment (with .env loaded first when present).
func applyCredentials(cmd *cobra.Command, cfg *config.Config) error {
	// A missing .env file is the normal case, not an error.
	_ = godotenv.Load() //nolint:errcheck

	var err error
	if cfg.User, err = cmd.Flags().GetString("user"); err != nil {
		return err
	}
	if cfg.Password, err = cmd.Flags().GetString("password"); err != nil {
		return err
	}
	if deviceID, err := cmd.Flags().GetString("device-id"); err != nil {
		return err
	} else if deviceID != "" {
		cfg.DeviceID = deviceID
	}

	if cfg.User == "" {
		cfg.User = os.Getenv("PLAYCRAWL_USER")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("PLAYCRAWL_PASSWORD")
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = os.Getenv("PLAYCRAWL_DEVICE_ID")
	}
	return nil
}

// discardStore satisfies the crawler's store interface when persistence
// is disabled.
type discardStore struct{}

// SaveVisit discards the visit.
func (discardStore) SaveVisit(context.Context, *model.Visit) error { return nil }

// runCrawl executes the crawl.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting",
		"seed", cfg.Seed,
		"iterations", cfg.MaxIterations,
		"download", cfg.DownloadEnabled,
		"store", cfg.StoreEnabled,
	)

	var (
		store          crawler.Store = discardStore{}
		db             *database.CrawlDB
		alreadyVisited []string
	)
	if cfg.StoreEnabled {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		store = db
		logger.Info("database opened", "dir", cfg.DBDir)

		alreadyVisited, err = db.VisitedDocIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to load visited entries: %w", err)
		}
		logger.Debug("loaded visited set", "count", len(alreadyVisited))
	}

	session := protocol.NewSession(cfg, protocol.WithLogger(logger))
	if err := session.Login(ctx, cfg.User, cfg.Password, cfg.DeviceID); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	opts := []crawler.Option{
		crawler.WithMaxVisits(cfg.MaxIterations),
		crawler.WithReviewCount(cfg.ReviewCount),
		crawler.WithVisitDelay(cfg.VisitDelay),
		crawler.WithRetryBackoff(cfg.RetryBackoff),
		crawler.WithLogger(logger),
	}
	if cfg.DownloadEnabled {
		opts = append(opts, crawler.WithDownloads(cfg.DownloadDir))
	}
	if cfg.EnrichEnabled {
		enricher := scrape.New(cfg.StorePageURL,
			scrape.WithLogger(logger),
			scrape.WithUserAgent(cfg.DownloadUserAgent))
		opts = append(opts, crawler.WithEnricher(enricher))
	}

	c := crawler.New(session, store, opts...)
	crawlReport, err := c.Crawl(ctx, cfg.Seed, alreadyVisited)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if db != nil {
		if err := db.SaveCrawlRun(ctx, crawlReport); err != nil {
			logger.Error("failed to record crawl run", "error", err)
		}
	}

	return writeReport(cfg, crawlReport)
}

// writeReport renders the crawl summary in the configured format to stdout
// or to the configured file.
func writeReport(cfg *config.Config, crawlReport *model.CrawlReport) error {
	var output io.Writer = os.Stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.Create(cfg.ReportFile) //nolint:gosec // User-provided report path is intentional
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithIndent("", "  "))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	if _, err := writer.Write(crawlReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
