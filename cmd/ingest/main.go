package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timmy/recipe-ingest/internal/app"
	"github.com/timmy/recipe-ingest/internal/config"
	"github.com/timmy/recipe-ingest/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "recipe-ingest",
	Short:         "Process recipe files outside the API server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults to CONFIG_PATH or ./configs/config.yaml)")
	rootCmd.AddCommand(processCmd, reprocessCmd, statsCmd, cleanupCmd)
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "recipe-ingest-cli",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(logger.SetComponent(ctx, "cli")); err != nil {
		appLogger.WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}

// withApp builds the pipeline for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.FromContext(ctx).WithError(cerr).Warn("Failed to close resources")
		}
	}()
	return fn(ctx, a)
}
