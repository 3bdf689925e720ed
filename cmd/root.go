// Package cmd implements the streamharvest CLI: ingestion, hybrid search,
// cache inspection, schema migration and version reporting.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/log"
)

// Execute is the CLI entry point called from main. It loads and validates
// configuration, sets up logging and dispatches to the subcommands.
func Execute() error {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	root := NewRootCmd(cfg, logger)
	return root.Execute()
}

// NewRootCmd builds the root command with all subcommands registered.
func NewRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "streamharvest",
		Short: "Hybrid retrieval core for creator content",
		Long: `streamharvest ingests transcripts, summaries and strategy documents into
three retrieval backends (semantic vectors, BM25 keyword index, SQL
analytics) and answers queries with rank-fused hybrid search.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		NewIngestCmd(cfg, logger),
		NewSearchCmd(cfg, logger),
		NewCacheCmd(cfg),
		NewMigrateCmd(cfg, logger),
		NewVersionCmd(cfg),
	)
	return root
}

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level; logs go to stderr so stdout stays parseable.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, log.Config{Level: level})
}
