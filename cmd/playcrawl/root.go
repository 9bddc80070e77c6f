package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for playcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playcrawl",
		Short: "Catalog crawler for the mobile-app store protocol",
		Long: `playcrawl is a client for the mobile-app catalog's binary protocol.
It authenticates with account credentials, walks the related-entries graph
from a seed entry, and stores details, reviews, and optionally the free
binaries it encounters along the way.

Credentials are taken from flags, from PLAYCRAWL_USER / PLAYCRAWL_PASSWORD /
PLAYCRAWL_DEVICE_ID environment variables, or from a .env file in the
working directory.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewDetailsCmd())
	cmd.AddCommand(NewRunsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
