package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoIcon = errors.New("no icon found")

func newIconCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "icon <url>",
		Short: "Resolve a site icon and print it as a data URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app App) error {
				icon, ok := app.Icon(ctx, args[0])
				if !ok {
					return fmt.Errorf("%s: %w", args[0], errNoIcon)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), icon.DataURI())
				return err
			})
		},
	}
}
