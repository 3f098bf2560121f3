// Package cmd defines and implements the CLI commands for the coursesync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/coursesync/internal/app"
	"github.com/JakeFAU/coursesync/internal/config"
	"github.com/JakeFAU/coursesync/internal/logging"
	"github.com/JakeFAU/coursesync/internal/orchestrator"
	"github.com/JakeFAU/coursesync/internal/snapshot"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the service container the commands use. Tests inject
// their own implementation through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Backup() *snapshot.Writer
	Orchestrator(dryRun bool) *orchestrator.Orchestrator
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.NewApp(ctx, cfg, logger)
}

// runLogger is the configured logger once PersistentPreRunE has built it.
var runLogger *zap.Logger

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "coursesync",
		Short: "Collects course listings from provider sites and syncs them to a remote table.",
		Long: `coursesync visits every configured course provider with one shared browser
session, normalizes the listings into a single dataset, replaces the contents
of the remote table with it, and keeps a dated local snapshot of every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: load config, build the logger and the
		// service container, and hand the container to the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			runLogger = logger

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newSyncCmd(), newExtractCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero after logging when it fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fatalLogger().Fatal("Command execution failed", zap.Error(err))
	}
}

// fatalLogger falls back to a production logger when the command failed
// before its own logger was built, such as on a bad config file.
func fatalLogger() *zap.Logger {
	if runLogger != nil {
		return runLogger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
