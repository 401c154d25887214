// Package timeseries defines the records shared by the registry, backends and stores.
package timeseries

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBackendURL is the default forecasting backend endpoint
	DefaultBackendURL = "http://localhost:47334"
	// DefaultBackend is the backend type used when none is configured
	DefaultBackend = "mindsdb"
	// DefaultHistoryWindow is the number of prior points consulted per forecast
	DefaultHistoryWindow uint32 = 30
	// DefaultForecastHorizon is the number of future points produced per forecast
	DefaultForecastHorizon uint32 = 7
	// DefaultTargetColumn is used when a request does not name a target column
	DefaultTargetColumn = "target"
)

var (
	// ErrModelNameRequired is returned when a model config has no name
	ErrModelNameRequired = errors.New("model name is required")
	// ErrTargetColumnRequired is returned when a model config has no target column
	ErrTargetColumnRequired = errors.New("target column is required")
	// ErrHorizonRequired is returned when the forecast horizon is zero
	ErrHorizonRequired = errors.New("forecast horizon must be greater than zero")
)

// ModelConfig describes a registered forecasting model.
// Re-registration supersedes a config; the latest row by UpdatedAt is current.
type ModelConfig struct {
	ID               uuid.UUID         `json:"id" yaml:"-"`
	ModelName        string            `json:"model_name" yaml:"modelName"`
	TargetColumn     string            `json:"target_column" yaml:"targetColumn"`
	HistoryWindow    uint32            `json:"history_window" yaml:"historyWindow"`
	ForecastHorizon  uint32            `json:"forecast_horizon" yaml:"forecastHorizon"`
	BackendURL       string            `json:"backend_url" yaml:"backendURL"`
	Backend          string            `json:"backend,omitempty" yaml:"backend"`
	AdditionalParams map[string]string `json:"additional_params" yaml:"additionalParams"`
	UpdatedAt        time.Time         `json:"updated_at" yaml:"-"`
}

// SetDefaults fills unset fields with the documented defaults
func (c *ModelConfig) SetDefaults() {
	if c.HistoryWindow == 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}

	if c.ForecastHorizon == 0 {
		c.ForecastHorizon = DefaultForecastHorizon
	}

	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}

	if c.Backend == "" {
		c.Backend = DefaultBackend
	}

	if c.AdditionalParams == nil {
		c.AdditionalParams = map[string]string{}
	}
}

// Validate checks the config is usable for forecasting
func (c *ModelConfig) Validate() error {
	if c.ModelName == "" {
		return ErrModelNameRequired
	}

	if c.TargetColumn == "" {
		return ErrTargetColumnRequired
	}

	if c.ForecastHorizon == 0 {
		return ErrHorizonRequired
	}

	return nil
}

// Observation is a single training data point. Immutable once written.
type Observation struct {
	ID                 uuid.UUID         `json:"id"`
	ModelID            uuid.UUID         `json:"model_id"`
	Timestamp          time.Time         `json:"timestamp"`
	TargetColumn       string            `json:"target_column"`
	Value              float64           `json:"value"`
	AdditionalFeatures map[string]string `json:"additional_features"`
}

// Forecast is one predicted point of a horizon. Immutable once written.
type Forecast struct {
	ID             uuid.UUID `json:"id"`
	ModelID        uuid.UUID `json:"model_id"`
	Timestamp      time.Time `json:"timestamp"`
	TargetColumn   string    `json:"target_column"`
	PredictedValue float64   `json:"predicted_value"`
	Confidence     float64   `json:"confidence"`
}

// Point is the read-side projection of a stored row
type Point struct {
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
}

// Result is the prediction returned to callers
type Result struct {
	Prediction []float64 `json:"prediction"`
	Confidence float64   `json:"confidence"`
}

// NewID returns a time-orderable identifier
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does
		return uuid.New()
	}

	return id
}
