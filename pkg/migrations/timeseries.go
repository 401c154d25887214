package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/sirupsen/logrus"
)

// ViewGracePeriod is added to the cut-over instant of the observations view on
// non-clean installs. Rows written between table and view creation fall inside it.
const ViewGracePeriod = 15 * time.Second

// TimeSeriesID identifies the time series schema migration
const TimeSeriesID = "0001_timeseries"

// TimeSeries creates the observation, forecast and model config tables plus the
// materialized view over observations.
type TimeSeries struct {
	log        logrus.FieldLogger
	client     clickhouse.ClientInterface
	tables     clickhouse.Tables
	cleanStart bool
	now        func() time.Time
}

// NewTimeSeries creates the migration. cleanStart marks a fresh install with
// no historical observations.
func NewTimeSeries(log logrus.FieldLogger, client clickhouse.ClientInterface, tables clickhouse.Tables, cleanStart bool) *TimeSeries {
	return &TimeSeries{
		log:        log.WithField("migration", TimeSeriesID),
		client:     client,
		tables:     tables,
		cleanStart: cleanStart,
		now:        time.Now,
	}
}

// WithClock overrides the clock used for the view cut-over
func (m *TimeSeries) WithClock(now func() time.Time) *TimeSeries {
	m.now = now
	return m
}

// ID implements Migration
func (m *TimeSeries) ID() string {
	return TimeSeriesID
}

// CanApply implements Migration
func (m *TimeSeries) CanApply(ctx context.Context) error {
	return clickhouse.Health(ctx, m.client)
}

// ShouldApply implements Migration. The view is part of the check so a
// failure between table and view creation is re-attempted on the next run.
func (m *TimeSeries) ShouldApply(ctx context.Context) (bool, error) {
	for _, name := range []string{
		clickhouse.TableObservations,
		clickhouse.TableForecasts,
		clickhouse.TableModelConfigs,
		clickhouse.ViewObservationsModel,
	} {
		exists, err := clickhouse.TableExists(ctx, m.client, m.tables.Database, name)
		if err != nil {
			return false, err
		}

		if !exists {
			m.log.WithField("table", name).Debug("Schema object missing")
			return true, nil
		}
	}

	return false, nil
}

// HasSucceeded implements Migration
func (m *TimeSeries) HasSucceeded(ctx context.Context) (bool, error) {
	should, err := m.ShouldApply(ctx)
	if err != nil {
		return false, err
	}

	return !should, nil
}

// Apply implements Migration
func (m *TimeSeries) Apply(ctx context.Context) error {
	// Computed once, before any object exists
	cutover := m.now().Add(ViewGracePeriod)

	for _, stmt := range m.statements(cutover) {
		if _, err := m.client.Execute(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.object, err)
		}

		m.log.WithField("object", stmt.object).Debug("Created schema object")
	}

	return nil
}

type statement struct {
	object string
	query  string
}

func (m *TimeSeries) statements(cutover time.Time) []statement {
	stmts := make([]statement, 0, 5)

	if m.tables.Database != "" {
		stmts = append(stmts, statement{
			object: m.tables.Database,
			query:  fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", m.tables.Database),
		})
	}

	return append(stmts,
		statement{
			object: m.tables.Observations,
			query: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s
				(
					id UUID,
					model_id UUID,
					timestamp DateTime64(3, 'UTC'),
					target_column String,
					value Float64,
					additional_features Map(String, String),
					created_at DateTime MATERIALIZED UUIDv7ToDateTime(id)
				) ENGINE = MergeTree()
				ORDER BY (model_id, timestamp)
			`, m.tables.Observations),
		},
		statement{
			object: m.tables.Forecasts,
			query: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s
				(
					id UUID,
					model_id UUID,
					timestamp DateTime64(3, 'UTC'),
					target_column String,
					predicted_value Float64,
					confidence Float64,
					created_at DateTime MATERIALIZED UUIDv7ToDateTime(id)
				) ENGINE = MergeTree()
				ORDER BY (model_id, timestamp)
			`, m.tables.Forecasts),
		},
		statement{
			object: m.tables.ModelConfigs,
			query: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s
				(
					id UUID,
					model_name String,
					target_column String,
					history_window UInt32,
					forecast_horizon UInt32,
					backend_url String,
					backend String,
					additional_params Map(String, String),
					created_at DateTime MATERIALIZED UUIDv7ToDateTime(id),
					updated_at DateTime64(3, 'UTC'),
					version UUID
				) ENGINE = MergeTree()
				ORDER BY (model_name, id)
			`, m.tables.ModelConfigs),
		},
		statement{
			object: m.tables.ObservationsView,
			query: fmt.Sprintf(`
				CREATE MATERIALIZED VIEW IF NOT EXISTS %s
				ENGINE = MergeTree()
				ORDER BY (model_id, target_column, timestamp)
				AS
				SELECT
					id,
					model_id,
					timestamp,
					target_column,
					value,
					additional_features
				FROM %s
				%s
			`, m.tables.ObservationsView, m.tables.Observations, m.viewFilter(cutover)),
		},
	)
}

// viewFilter bounds the view to rows created at or after the cut-over on
// non-clean installs so historical rows are never re-derived through it.
func (m *TimeSeries) viewFilter(cutover time.Time) string {
	if m.cleanStart {
		return ""
	}

	return fmt.Sprintf("WHERE UUIDv7ToDateTime(id) >= toDateTime(%d)", cutover.Unix())
}

// RollbackInstructions implements Migration. Data is not preserved.
func (m *TimeSeries) RollbackInstructions() string {
	return fmt.Sprintf(`
DROP VIEW IF EXISTS %s;
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
`, m.tables.ObservationsView, m.tables.Observations, m.tables.Forecasts, m.tables.ModelConfigs)
}

// Provision runs the time series migration with a fresh runner
func Provision(ctx context.Context, log logrus.FieldLogger, client clickhouse.ClientInterface, tables clickhouse.Tables, cleanStart bool) error {
	return NewRunner(log, NewTimeSeries(log, client, tables, cleanStart)).Run(ctx)
}
