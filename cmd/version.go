package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streamharvest/streamharvest/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "streamharvest %s\n", AppVersion)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configuration:")
			fmt.Fprintf(out, "  Sinks: %s\n", strings.Join(cfg.EnabledSinks(), ", "))
			fmt.Fprintf(out, "  Embedder: %s\n", cfg.EmbedderModel)
			fmt.Fprintf(out, "  Keyword index: %s\n", cfg.KeywordIndexPath)
			fmt.Fprintf(out, "  Chunking: %d tokens, %d overlap\n", cfg.MaxTokens, cfg.OverlapTokens)
			fmt.Fprintf(out, "  Policy mode: %s\n", cfg.PolicyMode)
			return nil
		},
	}
}
