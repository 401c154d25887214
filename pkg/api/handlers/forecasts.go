package handlers

import (
	"time"

	"github.com/ethpandaops/tsforecast/pkg/cache"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
)

// ObservationInput is one data row sent by a caller
type ObservationInput struct {
	Timestamp          time.Time         `json:"timestamp"`
	Value              float64           `json:"value"`
	TargetColumn       string            `json:"target_column,omitempty"`
	AdditionalFeatures map[string]string `json:"additional_features,omitempty"`
}

// CacheOptions selects caching for a single forecast request
type CacheOptions struct {
	Mode   string `json:"mode"`
	MaxAge string `json:"max_age"`
}

// ForecastRequest is the body of POST /models/:name/forecast
type ForecastRequest struct {
	Data         []ObservationInput `json:"data"`
	TargetColumn string             `json:"target_column"`
	Cache        *CacheOptions      `json:"cache,omitempty"`
}

// ObservationsRequest is the body of POST /models/:name/observations
type ObservationsRequest struct {
	Observations []ObservationInput `json:"observations"`
}

func toObservations(in []ObservationInput) []timeseries.Observation {
	out := make([]timeseries.Observation, 0, len(in))

	for _, o := range in {
		out = append(out, timeseries.Observation{
			Timestamp:          o.Timestamp.UTC(),
			TargetColumn:       o.TargetColumn,
			Value:              o.Value,
			AdditionalFeatures: o.AdditionalFeatures,
		})
	}

	return out
}

func (o *CacheOptions) options() (cache.Options, error) {
	if o == nil {
		return cache.Options{}, nil
	}

	mode, err := cache.ParseMode(o.Mode)
	if err != nil {
		return cache.Options{}, err
	}

	opts := cache.Options{Mode: mode}

	if o.MaxAge != "" {
		maxAge, err := time.ParseDuration(o.MaxAge)
		if err != nil || maxAge <= 0 {
			return cache.Options{}, ErrInvalidMaxAge
		}

		opts.MaxAge = maxAge
	}

	return opts, nil
}

// Forecast handles POST /api/v1/models/:name/forecast
func (s *Server) Forecast(c fiber.Ctx) error {
	var req ForecastRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return ErrInvalidBody
	}

	opts, err := req.Cache.options()
	if err != nil {
		return err
	}

	cfg, err := s.registry.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	result, err := s.forecasts.Predict(c.Context(), cfg, toObservations(req.Data), req.TargetColumn, opts)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// RecentForecasts handles GET /api/v1/models/:name/forecasts
func (s *Server) RecentForecasts(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	cfg, err := s.registry.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	var points []timeseries.Point

	if raw := c.Query("max_age"); raw != "" {
		maxAge, parseErr := time.ParseDuration(raw)
		if parseErr != nil || maxAge <= 0 {
			return ErrInvalidMaxAge
		}

		points, err = s.forecasts.GetRecentWithMaxAge(c.Context(), cfg.ID, limit, maxAge)
	} else {
		points, err = s.forecasts.GetRecent(c.Context(), cfg.ID, limit)
	}

	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"model":     cfg.ModelName,
		"forecasts": points,
		"total":     len(points),
	})
}

// AddObservations handles POST /api/v1/models/:name/observations
func (s *Server) AddObservations(c fiber.Ctx) error {
	var req ObservationsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return ErrInvalidBody
	}

	cfg, err := s.registry.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	observations := toObservations(req.Observations)
	for i := range observations {
		if observations[i].TargetColumn == "" {
			observations[i].TargetColumn = cfg.TargetColumn
		}
	}

	if err := s.forecasts.AddObservations(c.Context(), cfg.ID, observations); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"model": cfg.ModelName,
		"count": len(observations),
	})
}

// RecentObservations handles GET /api/v1/models/:name/observations
func (s *Server) RecentObservations(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	cfg, err := s.registry.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	observations, err := s.forecasts.GetRecentObservations(c.Context(), cfg.ID, limit)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"model":        cfg.ModelName,
		"observations": observations,
		"total":        len(observations),
	})
}
