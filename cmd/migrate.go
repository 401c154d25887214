package cmd

import (
	"context"
	"fmt"

	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/migrations"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var cleanStart bool

//nolint:gochecknoglobals // Cobra commands are typically global
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Provision the ClickHouse schema",
	Long: `Creates the observation, forecast and model config tables and the
per-model observation view. Existing objects are left untouched.`,
	RunE: runMigrate,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Print the SQL that removes the schema",
	Long:  `Prints the rollback script. Nothing is executed.`,
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)

	migrateCmd.Flags().BoolVar(&cleanStart, "clean-start", false, "make the observation view cover rows written before provisioning")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return validationErr
	}

	client, err := clickhouse.NewClient(logger, &cfg.ClickHouse)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Stop(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close ClickHouse client")
		}
	}()

	if err := migrations.Provision(context.Background(), logger, client, clickhouse.TablesFor(&cfg.ClickHouse), cleanStart); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")

	return nil
}

func runRollback(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}

	// Printing needs no connection, only the table names
	tables := clickhouse.TablesFor(&cfg.ClickHouse)
	runner := migrations.NewRunner(logger, migrations.NewTimeSeries(logger, nil, tables, false))

	_, _ = fmt.Fprint(cmd.OutOrStdout(), runner.RollbackInstructions())

	return nil
}
