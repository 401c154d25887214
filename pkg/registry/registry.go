// Package registry maps model names to their forecasting configuration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/sirupsen/logrus"
)

var (
	// ErrModelNotFound is returned when no config exists for a name or id
	ErrModelNotFound = errors.New("model not found")
	// ErrUnknownMode is returned for an unsupported registry mode
	ErrUnknownMode = errors.New("unknown registry mode")
)

// Registry modes
const (
	ModeMemory  = "memory"
	ModeDurable = "durable"
)

// Registry resolves model names to configs
type Registry interface {
	// Register upserts the config under name. Last writer wins.
	Register(ctx context.Context, name string, cfg timeseries.ModelConfig) error
	// Get returns the current config for name or ErrModelNotFound
	Get(ctx context.Context, name string) (timeseries.ModelConfig, error)
	// List returns a snapshot of known names
	List(ctx context.Context) ([]string, error)
}

// prepare normalizes a config before it is stored under name
func prepare(name string, cfg timeseries.ModelConfig) (timeseries.ModelConfig, error) {
	cfg.ModelName = name
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return timeseries.ModelConfig{}, fmt.Errorf("invalid config for model %q: %w", name, err)
	}

	return cfg, nil
}

// Memory is an ephemeral registry. A single mutex guards reads and writes alike.
type Memory struct {
	log    logrus.FieldLogger
	now    func() time.Time
	mu     sync.Mutex
	models map[string]timeseries.ModelConfig
}

// NewMemory creates an empty in-memory registry
func NewMemory(log logrus.FieldLogger) *Memory {
	return &Memory{
		log:    log.WithField("component", "registry-memory"),
		now:    time.Now,
		models: make(map[string]timeseries.ModelConfig),
	}
}

// Register implements Registry. A re-registered name keeps its model id.
func (m *Memory) Register(_ context.Context, name string, cfg timeseries.ModelConfig) error {
	cfg, err := prepare(name, cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.models[name]; ok {
		cfg.ID = existing.ID
	} else {
		cfg.ID = timeseries.NewID()
	}

	cfg.UpdatedAt = m.now().UTC()
	m.models[name] = cfg

	observability.RegisteredModels.Set(float64(len(m.models)))

	m.log.WithFields(logrus.Fields{
		"model":    name,
		"model_id": cfg.ID,
	}).Debug("Registered model")

	return nil
}

// Get implements Registry
func (m *Memory) Get(_ context.Context, name string) (timeseries.ModelConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.models[name]
	if !ok {
		return timeseries.ModelConfig{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	return cfg, nil
}

// List implements Registry. Names are sorted.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	names := make([]string, 0, len(m.models))

	for name := range m.models {
		names = append(names, name)
	}
	m.mu.Unlock()

	sort.Strings(names)

	return names, nil
}

var (
	_ Registry = (*Memory)(nil)
	_ Registry = (*Durable)(nil)
)
