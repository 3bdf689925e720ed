package cmd

import (
	"github.com/spf13/cobra"

	"github.com/streamharvest/streamharvest/internal/config"
)

// NewCacheCmd creates the cache command group. The result cache lives in
// process memory and dies with the process, so a CLI invocation has nothing
// to inspect or clear; the command reports the configured caching behavior.
func NewCacheCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show retrieval result cache configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show configured TTL and bypass window",
		Long: "The result cache is per-process: each search command starts with an\n" +
			"empty cache, so there are no live entries or hit counters to report\n" +
			"from the CLI. Stats shows the configuration a long-lived embedding of\n" +
			"streamharvest would run with.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), struct {
				Scope        string `json:"scope"`
				TTL          string `json:"ttl"`
				BypassWindow string `json:"bypass_recent_window"`
			}{
				Scope:        "per-process",
				TTL:          cfg.CacheTTL.String(),
				BypassWindow: cfg.CacheBypassRecentWindow.String(),
			})
		},
	})

	return cmd
}
