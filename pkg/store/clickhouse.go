package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type forecastRow struct {
	ID             uuid.UUID `json:"id"`
	ModelID        uuid.UUID `json:"model_id"`
	Timestamp      string    `json:"timestamp"`
	TargetColumn   string    `json:"target_column"`
	PredictedValue float64   `json:"predicted_value"`
	Confidence     float64   `json:"confidence"`
}

type observationRow struct {
	ID                 uuid.UUID         `json:"id"`
	ModelID            uuid.UUID         `json:"model_id"`
	Timestamp          string            `json:"timestamp"`
	TargetColumn       string            `json:"target_column"`
	Value              float64           `json:"value"`
	AdditionalFeatures map[string]string `json:"additional_features"`
}

// pointResult reads timestamps as epoch milliseconds. ClickHouse quotes
// 64-bit integers in JSON output.
type pointResult struct {
	TimestampMs int64   `json:"ts_ms,string"`
	Value       float64 `json:"value"`
	Confidence  float64 `json:"confidence"`
}

type observationResult struct {
	ID                 uuid.UUID         `json:"id"`
	ModelID            uuid.UUID         `json:"model_id"`
	TimestampMs        int64             `json:"ts_ms,string"`
	TargetColumn       string            `json:"target_column"`
	Value              float64           `json:"value"`
	AdditionalFeatures map[string]string `json:"additional_features"`
}

// ClickHouse stores rows through the ClickHouse HTTP client
type ClickHouse struct {
	log    logrus.FieldLogger
	client clickhouse.ClientInterface
	tables clickhouse.Tables
}

// NewClickHouse creates a store over the forecasting tables
func NewClickHouse(log logrus.FieldLogger, client clickhouse.ClientInterface, tables clickhouse.Tables) *ClickHouse {
	return &ClickHouse{
		log:    log.WithField("component", "store-clickhouse"),
		client: client,
		tables: tables,
	}
}

// InsertForecasts implements Store
func (s *ClickHouse) InsertForecasts(ctx context.Context, forecasts []timeseries.Forecast) error {
	if len(forecasts) == 0 {
		return nil
	}

	rows := make([]forecastRow, 0, len(forecasts))
	for _, f := range forecasts {
		rows = append(rows, forecastRow{
			ID:             f.ID,
			ModelID:        f.ModelID,
			Timestamp:      clickhouse.FormatTime(f.Timestamp),
			TargetColumn:   f.TargetColumn,
			PredictedValue: f.PredictedValue,
			Confidence:     f.Confidence,
		})
	}

	if err := s.client.BulkInsert(ctx, s.tables.Forecasts, rows); err != nil {
		return fmt.Errorf("failed to insert %d forecasts: %w", len(rows), err)
	}

	observability.RecordPersisted(clickhouse.TableForecasts, len(rows))

	return nil
}

// InsertObservations implements Store
func (s *ClickHouse) InsertObservations(ctx context.Context, observations []timeseries.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	rows := make([]observationRow, 0, len(observations))
	for _, o := range observations {
		features := o.AdditionalFeatures
		if features == nil {
			features = map[string]string{}
		}

		rows = append(rows, observationRow{
			ID:                 o.ID,
			ModelID:            o.ModelID,
			Timestamp:          clickhouse.FormatTime(o.Timestamp),
			TargetColumn:       o.TargetColumn,
			Value:              o.Value,
			AdditionalFeatures: features,
		})
	}

	if err := s.client.BulkInsert(ctx, s.tables.Observations, rows); err != nil {
		return fmt.Errorf("failed to insert %d observations: %w", len(rows), err)
	}

	observability.RecordPersisted(clickhouse.TableObservations, len(rows))

	return nil
}

// RecentForecasts implements Store
func (s *ClickHouse) RecentForecasts(ctx context.Context, modelID uuid.UUID, limit int, since time.Time) ([]timeseries.Point, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	params := []clickhouse.Param{clickhouse.UUIDParam("model_id", modelID)}

	filter := ""
	if !since.IsZero() {
		filter = "AND timestamp >= {since:DateTime64(3, 'UTC')}"
		params = append(params, clickhouse.TimeParam("since", since))
	}

	query := fmt.Sprintf(`
		SELECT
			toUnixTimestamp64Milli(timestamp) AS ts_ms,
			predicted_value AS value,
			confidence
		FROM %s
		WHERE model_id = {model_id:UUID}
		%s
		ORDER BY timestamp DESC
		LIMIT %d
	`, s.tables.Forecasts, filter, limit)

	var results []pointResult
	if err := s.client.QueryMany(ctx, query, &results, params...); err != nil {
		return nil, fmt.Errorf("failed to read forecasts for model %s: %w", modelID, err)
	}

	points := make([]timeseries.Point, 0, len(results))
	for _, r := range results {
		points = append(points, timeseries.Point{
			Timestamp:  time.UnixMilli(r.TimestampMs).UTC(),
			Value:      r.Value,
			Confidence: r.Confidence,
		})
	}

	return points, nil
}

// RecentObservations implements Store
func (s *ClickHouse) RecentObservations(ctx context.Context, modelID uuid.UUID, limit int) ([]timeseries.Observation, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	query := fmt.Sprintf(`
		SELECT *
		FROM (
			SELECT
				id,
				model_id,
				toUnixTimestamp64Milli(timestamp) AS ts_ms,
				target_column,
				value,
				additional_features
			FROM %s
			WHERE model_id = {model_id:UUID}
			ORDER BY timestamp DESC
			LIMIT %d
		)
		ORDER BY ts_ms ASC
	`, s.tables.Observations, limit)

	var results []observationResult
	if err := s.client.QueryMany(ctx, query, &results, clickhouse.UUIDParam("model_id", modelID)); err != nil {
		return nil, fmt.Errorf("failed to read observations for model %s: %w", modelID, err)
	}

	observations := make([]timeseries.Observation, 0, len(results))
	for _, r := range results {
		observations = append(observations, timeseries.Observation{
			ID:                 r.ID,
			ModelID:            r.ModelID,
			Timestamp:          time.UnixMilli(r.TimestampMs).UTC(),
			TargetColumn:       r.TargetColumn,
			Value:              r.Value,
			AdditionalFeatures: r.AdditionalFeatures,
		})
	}

	return observations, nil
}
