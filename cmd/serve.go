package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/tsforecast/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forecasting service",
	Long: `Provisions the ClickHouse schema, then serves the HTTP API. With queue
persistence the persistence worker runs in the same process.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := LoadEngineConfig(cfgFile)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("log-level") {
		level, parseErr := logrus.ParseLevel(config.Logging)
		if parseErr != nil {
			return parseErr
		}
		logger.SetLevel(level)
	}

	logger.Info("Configuration loaded")

	app, err := engine.NewService(logger, config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Graceful shutdown
	return app.Stop()
}
