package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hibernaut/hibernaut/internal/app"
	"github.com/hibernaut/hibernaut/internal/config"
	"github.com/hibernaut/hibernaut/internal/logger"
)

func newServeCmd(logInstance *slog.Logger, styledLogger *logger.StyledLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hibernation front proxy and dashboard API (default)",
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), logInstance, styledLogger)
		},
	}
}

func runServe(ctx context.Context, logInstance *slog.Logger, styledLogger *logger.StyledLogger) error {
	cfg, err := config.Load(configPath, func() {
		styledLogger.Warn("config file changed on disk; re-run check-config and restart to apply", "path", configPath)
	})
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to load config", "path", configPath, "error", err)
	}

	application, err := app.New(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to build application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("error during shutdown", "error", err)
	}

	return nil
}
