package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/playcrawl/playcrawl/internal/config"
	"github.com/playcrawl/playcrawl/internal/model"
	"github.com/playcrawl/playcrawl/internal/protocol"
)

// detailsFetchLimit bounds how many detail lookups run concurrently.
// The service tolerates a small fan-out; more just risks throttling.
const detailsFetchLimit = 4

// NewDetailsCmd creates the details command.
func NewDetailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details <doc-id>...",
		Short: "Fetch the details snapshot of one or more entries",
		Long: `Details authenticates with the catalog service and prints the details
snapshot of each given entry as JSON, without crawling or persisting
anything. Multiple entries are fetched concurrently.

Examples:
  playcrawl details com.example.app
  playcrawl details com.example.app com.example.game`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDetailsCmd,
	}

	cmd.Flags().StringP("user", "u", "", "Account email for authentication")
	cmd.Flags().String("password", "", "Account password (prefer PLAYCRAWL_PASSWORD or .env)")
	cmd.Flags().String("device-id", "", "Device identifier sent with every call")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .playcrawl in current or home directory)")

	return cmd
}

// runDetailsCmd executes the details command.
func runDetailsCmd(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if found := config.FindConfigFile(configPath); found != "" {
		file, err := config.LoadConfigFile(found)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		if err := file.ApplyTo(cfg); err != nil {
			return fmt.Errorf("invalid config file %s: %w", found, err)
		}
	} else if configPath != "" {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	if err := applyCredentials(cmd, cfg); err != nil {
		return err
	}
	if cfg.User == "" || cfg.Password == "" {
		return config.ErrNoCredentials
	}
	if cfg.DeviceID == "" {
		return config.ErrNoDeviceID
	}

	logger := setupLogger(getVerboseFlag(cmd))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return runDetails(ctx, cmd, cfg, args)
}

// runDetails fetches the given entries concurrently and prints them as
// JSON in argument order.
func runDetails(ctx context.Context, cmd *cobra.Command, cfg *config.Config, docIDs []string) error {
	session := protocol.NewSession(cfg, protocol.WithLogger(slog.Default()))
	if err := session.Login(ctx, cfg.User, cfg.Password, cfg.DeviceID); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	entries := make([]*model.Entry, len(docIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailsFetchLimit)
	for i, docID := range docIDs {
		i, docID := i, docID
		g.Go(func() error {
			entry, err := session.Details(gctx, docID)
			if err != nil {
				return fmt.Errorf("details for %s: %w", docID, err)
			}
			mu.Lock()
			entries[i] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return nil
}
