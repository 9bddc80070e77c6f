package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/playcrawl/playcrawl/internal/config"
	"github.com/playcrawl/playcrawl/internal/database"
)

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded crawl runs",
		Long: `Runs lists the crawl runs recorded in the local database, newest first,
with their seed and result counters.`,
		Args: cobra.NoArgs,
		RunE: runRunsCmd,
	}

	cmd.Flags().String("db-dir", "",
		"Directory holding the SQLite database (default: XDG data directory)")

	return cmd
}

// runRunsCmd executes the runs command.
func runRunsCmd(cmd *cobra.Command, _ []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("no crawl database found (run a crawl first): %w", err)
	}
	defer db.Close()

	runs, err := db.ListCrawlRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list crawl runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no crawl runs recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSEED\tVISITED\tABANDONED\tDOWNLOADED\tELAPSED\tRUN ID")
	for _, run := range runs {
		status := ""
		if run.Stopped {
			status = " (stopped)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s%s\t%s\n",
			run.StartedAt.Format("2006-01-02 15:04"),
			run.Seed,
			run.VisitedCount,
			run.Abandoned,
			run.Downloaded,
			run.Elapsed.Round(0),
			status,
			run.RunID,
		)
	}
	return w.Flush()
}
