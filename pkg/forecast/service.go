// Package forecast issues forecast calls to a backend, hands results off for
// persistence and serves time-windowed reads of stored forecasts.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/backend"
	"github.com/ethpandaops/tsforecast/pkg/cache"
	"github.com/ethpandaops/tsforecast/pkg/fingerprint"
	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultStep spaces forecast rows when the input has fewer than two observations
const DefaultStep = time.Hour

var (
	// ErrNoObservations is returned when neither the request nor the store has history
	ErrNoObservations = errors.New("no observations to forecast from")
	// ErrInvalidMaxAge is returned for a non-positive max age
	ErrInvalidMaxAge = errors.New("max age must be greater than zero")
	// ErrModelIDRequired is returned when a forecast is requested for a config with no id
	ErrModelIDRequired = errors.New("model id is required")
)

// Service defines the public interface for forecasting
type Service interface {
	// Predict calls the model's backend once and returns its result. Rows are
	// persisted off the request path; a failed call persists nothing.
	Predict(ctx context.Context, cfg timeseries.ModelConfig, observations []timeseries.Observation, targetColumn string, opts cache.Options) (*timeseries.Result, error)
	// GetRecent returns up to limit forecasts newest first
	GetRecent(ctx context.Context, modelID uuid.UUID, limit int) ([]timeseries.Point, error)
	// GetRecentWithMaxAge is GetRecent without forecasts older than now - maxAge
	GetRecentWithMaxAge(ctx context.Context, modelID uuid.UUID, limit int, maxAge time.Duration) ([]timeseries.Point, error)
	// AddObservations stores training points for a model
	AddObservations(ctx context.Context, modelID uuid.UUID, observations []timeseries.Observation) error
	// GetRecentObservations returns the latest limit observations oldest first
	GetRecentObservations(ctx context.Context, modelID uuid.UUID, limit int) ([]timeseries.Observation, error)
}

// service implements Service
type service struct {
	log       logrus.FieldLogger
	store     store.Store
	backends  backend.Factory
	persister Persister
	cache     *cache.Cache
	now       func() time.Time
}

// Option customizes the service
type Option func(*service)

// WithCache enables fingerprint keyed result caching for requests that ask for it
func WithCache(c *cache.Cache) Option {
	return func(s *service) {
		s.cache = c
	}
}

// WithClock overrides the clock used for row timestamps and age filters
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// NewService creates a forecast service
func NewService(log logrus.FieldLogger, s store.Store, backends backend.Factory, persister Persister, opts ...Option) Service {
	svc := &service{
		log:       log.WithField("component", "forecast"),
		store:     s,
		backends:  backends,
		persister: persister,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Predict implements Service
func (s *service) Predict(ctx context.Context, cfg timeseries.ModelConfig, observations []timeseries.Observation, targetColumn string, opts cache.Options) (*timeseries.Result, error) {
	if cfg.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: model %s", ErrModelIDRequired, cfg.ModelName)
	}

	cfg.SetDefaults()

	target := targetColumn
	if target == "" {
		target = cfg.TargetColumn
	}

	if target == "" {
		target = timeseries.DefaultTargetColumn
	}

	provider, err := s.backends(cfg)
	if err != nil {
		return nil, err
	}

	observations, err = s.history(ctx, cfg, observations)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"model":    cfg.ModelName,
		"model_id": cfg.ID,
		"backend":  provider.Name(),
	})

	var key fingerprint.Key

	useCache := s.cache != nil && (opts.CanRead() || opts.CanWrite())
	if useCache {
		key = fingerprint.Generate(cfg.ModelName, provider.Name(), target, cfg.HistoryWindow, observations)
	}

	if useCache && opts.CanRead() {
		entry, cacheErr := s.cache.Get(ctx, key, opts.MaxAge)
		if cacheErr != nil {
			log.WithError(cacheErr).Warn("Forecast cache lookup failed")
		}

		if entry != nil {
			observability.RecordForecast(cfg.ModelName, provider.Name(), "cached")
			return entry.Result(), nil
		}
	}

	resp, err := provider.Infer(ctx, backend.Request{
		ModelName:    cfg.ModelName,
		TargetColumn: target,
		Horizon:      cfg.ForecastHorizon,
		Observations: observations,
		Params:       cfg.AdditionalParams,
	})
	if err != nil {
		observability.RecordForecast(cfg.ModelName, provider.Name(), "failed")
		return nil, fmt.Errorf("forecast for model %s failed: %w", cfg.ModelName, err)
	}

	observability.RecordForecast(cfg.ModelName, provider.Name(), "success")

	result := &timeseries.Result{Prediction: resp.Prediction, Confidence: resp.Confidence}

	s.persister.Persist(s.rows(cfg.ID, target, observations, result))

	if useCache && opts.CanWrite() {
		if err := s.cache.Set(ctx, key, result, opts.MaxAge); err != nil {
			log.WithError(err).Warn("Failed to cache forecast")
		}
	}

	log.WithField("steps", len(result.Prediction)).Debug("Forecast delivered")

	return result, nil
}

// history bounds the input to the history window, loading it from the store
// when the request carries none.
func (s *service) history(ctx context.Context, cfg timeseries.ModelConfig, observations []timeseries.Observation) ([]timeseries.Observation, error) {
	window := int(cfg.HistoryWindow)

	if len(observations) == 0 {
		stored, err := s.store.RecentObservations(ctx, cfg.ID, window)
		if err != nil {
			return nil, fmt.Errorf("failed to load history for model %s: %w", cfg.ModelName, err)
		}

		if len(stored) == 0 {
			return nil, fmt.Errorf("%w: model %s", ErrNoObservations, cfg.ModelName)
		}

		return stored, nil
	}

	if window > 0 && len(observations) > window {
		return observations[len(observations)-window:], nil
	}

	return observations, nil
}

// rows builds one forecast row per predicted step. Step i (zero based) is
// stamped i steps after the call, with the step taken from the input spacing.
func (s *service) rows(modelID uuid.UUID, target string, observations []timeseries.Observation, result *timeseries.Result) []timeseries.Forecast {
	step := DefaultStep

	if n := len(observations); n >= 2 {
		if d := observations[n-1].Timestamp.Sub(observations[n-2].Timestamp); d > 0 {
			step = d
		}
	}

	callTime := s.now().UTC()
	rows := make([]timeseries.Forecast, 0, len(result.Prediction))

	for i, value := range result.Prediction {
		rows = append(rows, timeseries.Forecast{
			ID:             timeseries.NewID(),
			ModelID:        modelID,
			Timestamp:      callTime.Add(time.Duration(i) * step),
			TargetColumn:   target,
			PredictedValue: value,
			Confidence:     result.Confidence,
		})
	}

	return rows
}

// GetRecent implements Service
func (s *service) GetRecent(ctx context.Context, modelID uuid.UUID, limit int) ([]timeseries.Point, error) {
	return s.store.RecentForecasts(ctx, modelID, limit, time.Time{})
}

// GetRecentWithMaxAge implements Service
func (s *service) GetRecentWithMaxAge(ctx context.Context, modelID uuid.UUID, limit int, maxAge time.Duration) ([]timeseries.Point, error) {
	if maxAge <= 0 {
		return nil, ErrInvalidMaxAge
	}

	return s.store.RecentForecasts(ctx, modelID, limit, s.now().Add(-maxAge))
}

// AddObservations implements Service. Missing ids and target columns are filled in.
func (s *service) AddObservations(ctx context.Context, modelID uuid.UUID, observations []timeseries.Observation) error {
	rows := make([]timeseries.Observation, 0, len(observations))

	for _, o := range observations {
		if o.ID == uuid.Nil {
			o.ID = timeseries.NewID()
		}

		if o.TargetColumn == "" {
			o.TargetColumn = timeseries.DefaultTargetColumn
		}

		o.ModelID = modelID
		o.Timestamp = o.Timestamp.UTC()
		rows = append(rows, o)
	}

	if err := s.store.InsertObservations(ctx, rows); err != nil {
		return fmt.Errorf("failed to add observations for model %s: %w", modelID, err)
	}

	return nil
}

// GetRecentObservations implements Service
func (s *service) GetRecentObservations(ctx context.Context, modelID uuid.UUID, limit int) ([]timeseries.Observation, error) {
	return s.store.RecentObservations(ctx, modelID, limit)
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
