package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	modelTarget     string
	modelHistory    uint32
	modelHorizon    uint32
	modelBackend    string
	modelBackendURL string
	modelParams     map[string]string
)

// modelsCmd represents the models command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage registered forecasting models",
	Long:  `Commands for registering, listing and inspecting model configurations stored in ClickHouse.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Suppress ClickHouse info logs unless explicitly set via --log-level
		if !cmd.Flags().Changed("log-level") {
			logger.SetLevel(logrus.ErrorLevel)
		}
		return nil
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var registerCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register or update a model",
	Long:  `Appends a config row for the model. The latest row wins and an existing model keeps its id.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsRegister,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE:  runModelsList,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the current config of a model as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsGet,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(registerCmd)
	modelsCmd.AddCommand(listCmd)
	modelsCmd.AddCommand(getCmd)

	registerCmd.Flags().StringVar(&modelTarget, "target-column", "", "column to forecast")
	registerCmd.Flags().Uint32Var(&modelHistory, "history-window", timeseries.DefaultHistoryWindow, "prior points consulted per forecast")
	registerCmd.Flags().Uint32Var(&modelHorizon, "horizon", timeseries.DefaultForecastHorizon, "future points produced per forecast")
	registerCmd.Flags().StringVar(&modelBackend, "backend", timeseries.DefaultBackend, "forecasting backend (mindsdb, local)")
	registerCmd.Flags().StringVar(&modelBackendURL, "backend-url", timeseries.DefaultBackendURL, "forecasting backend URL")
	registerCmd.Flags().StringToStringVar(&modelParams, "param", nil, "additional backend parameter as key=value, repeatable")
	_ = registerCmd.MarkFlagRequired("target-column")
}

// withRegistry opens the durable registry for the duration of fn
func withRegistry(fn func(ctx context.Context, reg *registry.Durable) error) error {
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

	tables := clickhouse.TablesFor(&cfg.ClickHouse)

	return fn(context.Background(), registry.NewDurable(logger, client, tables.ModelConfigs))
}

func runModelsRegister(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	name := args[0]
	cfg := timeseries.ModelConfig{
		TargetColumn:     modelTarget,
		HistoryWindow:    modelHistory,
		ForecastHorizon:  modelHorizon,
		Backend:          modelBackend,
		BackendURL:       modelBackendURL,
		AdditionalParams: modelParams,
	}

	return withRegistry(func(ctx context.Context, reg *registry.Durable) error {
		if err := reg.Register(ctx, name, cfg); err != nil {
			return err
		}

		stored, err := reg.Get(ctx, name)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", stored.ModelName, stored.ID)

		return nil
	})
}

func runModelsList(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return withRegistry(func(ctx context.Context, reg *registry.Durable) error {
		names, err := reg.List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "MODEL\tTARGET\tHISTORY\tHORIZON\tBACKEND\tUPDATED")

		for _, name := range names {
			cfg, err := reg.Get(ctx, name)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				cfg.ModelName, cfg.TargetColumn, cfg.HistoryWindow, cfg.ForecastHorizon,
				cfg.Backend, cfg.UpdatedAt.Format("2006-01-02 15:04:05"))
		}

		return w.Flush()
	})
}

func runModelsGet(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return withRegistry(func(ctx context.Context, reg *registry.Durable) error {
		cfg, err := reg.Get(ctx, args[0])
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# id: %s\n%s", cfg.ID, out)

		return nil
	})
}
