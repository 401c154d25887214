// Package engine wires the forecasting service together
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/api"
	"github.com/ethpandaops/tsforecast/pkg/backend"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/forecast"
	r "github.com/ethpandaops/tsforecast/pkg/redis"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/tasks"
	"github.com/ethpandaops/tsforecast/pkg/worker"
)

var (
	// ErrRedisRequired is returned when a Redis backed feature is enabled without a Redis address
	ErrRedisRequired = errors.New("redis address is required for queue persistence and caching")
	// ErrUnknownPersistence is returned for an unsupported persistence mode
	ErrUnknownPersistence = errors.New("unknown persistence mode")
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Dependencies
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Redis      r.Config          `yaml:"redis"`

	// CleanStart makes the observation view cover rows written before provisioning
	CleanStart bool `yaml:"cleanStart"`

	Registry    RegistryConfig    `yaml:"registry"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Backend     BackendConfig     `yaml:"backend"`
	Cache       CacheConfig       `yaml:"cache"`

	Worker worker.Config `yaml:"worker"`
	API    api.Config    `yaml:"api"`
}

// RegistryConfig selects where model configs live
type RegistryConfig struct {
	Mode string `yaml:"mode" default:"durable"`
}

// PersistenceConfig selects how forecast rows leave the request path
type PersistenceConfig struct {
	Mode    string        `yaml:"mode" default:"detached"`
	Timeout time.Duration `yaml:"timeout" default:"30s"`
	// RunWorker consumes the queue in-process when mode is queue
	RunWorker bool `yaml:"runWorker" default:"true"`
}

// BackendConfig bounds calls to forecasting backends
type BackendConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// CacheConfig enables the Redis forecast cache. Requests still opt in per call.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// needsRedis reports whether any enabled feature talks to Redis
func (c *Config) needsRedis() bool {
	return c.Cache.Enabled || c.Persistence.Mode == forecast.PersisterQueue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.ClickHouse.SetDefaults()
	c.Redis.SetDefaults()

	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = backend.DefaultTimeout
	}

	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}

	switch c.Registry.Mode {
	case registry.ModeMemory, registry.ModeDurable:
	default:
		return fmt.Errorf("%w: %q", registry.ErrUnknownMode, c.Registry.Mode)
	}

	switch c.Persistence.Mode {
	case forecast.PersisterDetached, forecast.PersisterQueue:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPersistence, c.Persistence.Mode)
	}

	if c.needsRedis() {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrRedisRequired, err)
		}
	}

	if c.Persistence.Mode == forecast.PersisterQueue {
		if c.Worker.Queue == "" {
			c.Worker.Queue = c.Redis.PrefixQueue(tasks.DefaultQueue)
		}

		if err := c.Worker.Validate(); err != nil {
			return err
		}
	}

	return c.API.Validate()
}
