package cmd

import (
	"errors"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/engine"
	"gopkg.in/yaml.v3"
)

var (
	// ErrClickHouseURLRequired is returned when ClickHouse URL is not provided
	ErrClickHouseURLRequired = errors.New("clickhouse URL is required")
)

// CLIConfig represents minimal configuration for CLI commands
type CLIConfig struct {
	// Logging level
	Logging string `yaml:"logging" default:"error" validate:"oneof=panic fatal warn info debug trace"`

	// ClickHouse configuration
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
}

// Validate validates the CLI configuration
func (c *CLIConfig) Validate() error {
	if c.ClickHouse.URL == "" {
		return ErrClickHouseURLRequired
	}

	c.ClickHouse.SetDefaults()

	return nil
}

// LoadCLIConfig loads CLI configuration from a YAML file. The engine config
// file works too: unknown sections are ignored.
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = "cli.yaml"
	}

	config := &CLIConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadEngineConfig loads the full service configuration from a YAML file
func LoadEngineConfig(path string) (*engine.Config, error) {
	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}
