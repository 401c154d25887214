package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
)

// Memory keeps rows in process. Used in ephemeral mode and tests.
type Memory struct {
	mu           sync.Mutex
	forecasts    []timeseries.Forecast
	observations []timeseries.Observation
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{}
}

// InsertForecasts implements Store
func (m *Memory) InsertForecasts(_ context.Context, forecasts []timeseries.Forecast) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forecasts = append(m.forecasts, forecasts...)

	return nil
}

// InsertObservations implements Store
func (m *Memory) InsertObservations(_ context.Context, observations []timeseries.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observations = append(m.observations, observations...)

	return nil
}

// RecentForecasts implements Store
func (m *Memory) RecentForecasts(_ context.Context, modelID uuid.UUID, limit int, since time.Time) ([]timeseries.Point, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	m.mu.Lock()
	matched := make([]timeseries.Forecast, 0)

	for _, f := range m.forecasts {
		if f.ModelID != modelID {
			continue
		}

		if !since.IsZero() && f.Timestamp.Before(since) {
			continue
		}

		matched = append(matched, f)
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	points := make([]timeseries.Point, 0, len(matched))
	for _, f := range matched {
		points = append(points, timeseries.Point{
			Timestamp:  f.Timestamp,
			Value:      f.PredictedValue,
			Confidence: f.Confidence,
		})
	}

	return points, nil
}

// RecentObservations implements Store
func (m *Memory) RecentObservations(_ context.Context, modelID uuid.UUID, limit int) ([]timeseries.Observation, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	m.mu.Lock()
	matched := make([]timeseries.Observation, 0)

	for _, o := range m.observations {
		if o.ModelID == modelID {
			matched = append(matched, o)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	return matched, nil
}

// Forecasts returns a copy of every stored forecast row
func (m *Memory) Forecasts() []timeseries.Forecast {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]timeseries.Forecast, len(m.forecasts))
	copy(out, m.forecasts)

	return out
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*ClickHouse)(nil)
)
