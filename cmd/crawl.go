package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newCrawlCmd runs one crawl in the foreground and prints the report.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl over the static list",
		Long: `Fetches the latest release of every tool in the static list that names a
fetcher, writes the results to the configured store and prints the crawl
report as JSON. Source failures only show up in the report; the command fails
when store writes fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app App) error {
				report, crawlErr := app.Crawl(ctx)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				return crawlErr
			})
		},
	}
}
