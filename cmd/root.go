// Package cmd defines and implements the CLI commands for the toolshelf executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/config"
	"github.com/JakeFAU/toolshelf/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Crawl(ctx context.Context) (catalog.CrawlReport, error)
	Icon(ctx context.Context, rawURL string) (catalog.Icon, bool)
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return server.Build(ctx, &cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolshelf",
		Short: "Curated software catalog with live version tracking.",
		Long: `toolshelf serves a curated catalog of desktop software. A crawl asks each
vendor for its latest release, rewrites download links onto fast mirrors and
stores the result; the HTTP API merges it with the static list.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); env TOOLSHELF_* overrides")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newIconCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp runs fn against the injected App and closes it afterwards, also
// when fn fails.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app App) error) (err error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := appInstance.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), appInstance)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
