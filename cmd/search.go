package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/rag"
)

// NewSearchCmd creates the search command.
func NewSearchCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		topK        int
		channelID   string
		videoID     string
		dateFrom    string
		dateTo      string
		minDuration int
		maxDuration int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search across the enabled sinks",
		Args:  cobra.MinimumNArgs(1),
		Example: `  streamharvest search "audience retention tactics" --top-k 5
  streamharvest search "pricing" --channel ch-42 --from 2025-01-01 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := buildFilters(channelID, videoID, dateFrom, dateTo, minDuration, maxDuration)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.retriever.Search(cmd.Context(), strings.Join(args, " "), filters, topK)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printResults(cmd, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 10, "maximum number of fused results")
	cmd.Flags().StringVar(&channelID, "channel", "", "restrict to one channel")
	cmd.Flags().StringVar(&videoID, "video", "", "restrict to one video")
	cmd.Flags().StringVar(&dateFrom, "from", "", "earliest publication date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "to", "", "latest publication date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&minDuration, "min-duration", 0, "minimum video duration in seconds")
	cmd.Flags().IntVar(&maxDuration, "max-duration", 0, "maximum video duration in seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full result with trace as JSON")

	return cmd
}

// buildFilters assembles the structured filter set from the flag values.
func buildFilters(channelID, videoID, dateFrom, dateTo string, minDur, maxDur int) (rag.Filters, error) {
	filters := rag.Filters{
		ChannelID:   channelID,
		VideoID:     videoID,
		MinDuration: minDur,
		MaxDuration: maxDur,
	}

	var err error
	if dateFrom != "" {
		if filters.DateFrom, err = time.Parse("2006-01-02", dateFrom); err != nil {
			return rag.Filters{}, fmt.Errorf("invalid --from date %q: %w", dateFrom, err)
		}
	}
	if dateTo != "" {
		if filters.DateTo, err = time.Parse("2006-01-02", dateTo); err != nil {
			return rag.Filters{}, fmt.Errorf("invalid --to date %q: %w", dateTo, err)
		}
	}
	return filters, nil
}

// printResults renders a human-readable result listing.
func printResults(cmd *cobra.Command, result *rag.SearchResult) {
	out := cmd.OutOrStdout()

	if result.Trace.Error != "" {
		fmt.Fprintf(out, "search degraded: %s\n", result.Trace.Error)
	}
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}

	for i, item := range result.Items {
		fmt.Fprintf(out, "%2d. [%.4f] %s (doc %s, via %s)\n",
			i+1, item.Score, item.ChunkID, item.DocID, strings.Join(item.Sources, "+"))
		snippet := item.TextSnippet
		if len(snippet) > 160 {
			snippet = snippet[:160] + "..."
		}
		fmt.Fprintf(out, "    %s\n", snippet)
	}
	fmt.Fprintf(out, "\ntrace %s: coverage %.0f%%, %d fused\n",
		result.Trace.TraceID, result.Trace.Coverage*100, result.Trace.FusedResultCount)
}
