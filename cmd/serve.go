package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and crawl workers",
		Long: `Starts the HTTP API, the crawl worker pool and, when configured, the
crawl schedule and static list watcher. SIGINT or SIGTERM drains in-flight
requests and stops the workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app App) error {
				return app.Run(ctx)
			})
		},
	}
}
