// Package cmd defines and implements the CLI commands for the leadscout executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/server"
)

var cfgFile string

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// App is the part of server.App the commands use. Tests swap in a fake.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Analyzer() lead.Analyzer
	Discover(ctx context.Context, params lead.DiscoveryParams) (lead.JobResult, error)
}

// newApp is the application factory. oneShot marks commands that exit after
// a single operation and so skip global telemetry.
var newApp = func(ctx context.Context, cfg *config.Config, oneShot bool) (App, error) {
	opts := server.BuildOptions{}
	if oneShot {
		opts.SkipTelemetry = true
		opts.Registerer = prometheus.NewRegistry()
	}
	app, err := server.Build(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return app, nil
}

// loadConfig is swapped by tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscout",
		Short: "Find local businesses with weak websites and track them as leads.",
		Long: `leadscout searches public engines for businesses matching a query,
scores each business website against a simple rubric, drops duplicates of
leads you already have, and keeps the rest in a sales pipeline.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, &cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env LEADSCOUT_* overrides)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// Execute is the main entry point. Cobra has already printed the error.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// withApp builds the application, runs fn and always closes the app.
func withApp(cmd *cobra.Command, oneShot bool, fn func(App) error) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), cfg, oneShot)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close(context.WithoutCancel(cmd.Context()))
	}()
	return fn(app)
}
