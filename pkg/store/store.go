// Package store persists observations and forecasts and serves the
// time-windowed reads behind the forecast service.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
)

// ErrInvalidLimit is returned for reads with a non-positive limit
var ErrInvalidLimit = errors.New("limit must be greater than zero")

// Store is the append-only sink for time series rows
type Store interface {
	// InsertForecasts writes one batch of forecast rows
	InsertForecasts(ctx context.Context, forecasts []timeseries.Forecast) error
	// InsertObservations writes one batch of observation rows
	InsertObservations(ctx context.Context, observations []timeseries.Observation) error
	// RecentForecasts returns up to limit forecasts newest first. A non-zero
	// since excludes forecasts with an earlier timestamp.
	RecentForecasts(ctx context.Context, modelID uuid.UUID, limit int, since time.Time) ([]timeseries.Point, error)
	// RecentObservations returns the latest limit observations oldest first
	RecentObservations(ctx context.Context, modelID uuid.UUID, limit int) ([]timeseries.Observation, error)
}
