package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// configRow is the JSONEachRow shape of a model config row
type configRow struct {
	ID               uuid.UUID         `json:"id"`
	ModelName        string            `json:"model_name"`
	TargetColumn     string            `json:"target_column"`
	HistoryWindow    uint32            `json:"history_window"`
	ForecastHorizon  uint32            `json:"forecast_horizon"`
	BackendURL       string            `json:"backend_url"`
	Backend          string            `json:"backend"`
	AdditionalParams map[string]string `json:"additional_params"`
	UpdatedAt        string            `json:"updated_at"`
	Version          uuid.UUID         `json:"version"`
}

// configResult is the FORMAT JSON shape of a model config read
type configResult struct {
	ID               uuid.UUID         `json:"id"`
	ModelName        string            `json:"model_name"`
	TargetColumn     string            `json:"target_column"`
	HistoryWindow    uint32            `json:"history_window"`
	ForecastHorizon  uint32            `json:"forecast_horizon"`
	BackendURL       string            `json:"backend_url"`
	Backend          string            `json:"backend"`
	AdditionalParams map[string]string `json:"additional_params"`
	UpdatedMs        int64             `json:"updated_ms,string"`
}

func (r configResult) config() timeseries.ModelConfig {
	return timeseries.ModelConfig{
		ID:               r.ID,
		ModelName:        r.ModelName,
		TargetColumn:     r.TargetColumn,
		HistoryWindow:    r.HistoryWindow,
		ForecastHorizon:  r.ForecastHorizon,
		BackendURL:       r.BackendURL,
		Backend:          r.Backend,
		AdditionalParams: r.AdditionalParams,
		UpdatedAt:        time.UnixMilli(r.UpdatedMs).UTC(),
	}
}

const configColumns = `
	id,
	model_name,
	target_column,
	history_window,
	forecast_horizon,
	backend_url,
	backend,
	additional_params,
	toUnixTimestamp64Milli(updated_at) AS updated_ms
`

// latestFirst orders config rows newest write first. UUIDv7 text sorts in
// generation order; ClickHouse's native UUID comparison does not.
const latestFirst = "toString(version) DESC"

// Durable keeps model configs in ClickHouse. Writes append rows, each stamped
// with a fresh UUIDv7 version; the row with the highest version is the current
// config, including rows written within the same millisecond.
type Durable struct {
	log    logrus.FieldLogger
	client clickhouse.ClientInterface
	table  string
	now    func() time.Time
}

// NewDurable creates a registry over the model config table
func NewDurable(log logrus.FieldLogger, client clickhouse.ClientInterface, table string) *Durable {
	return &Durable{
		log:    log.WithField("component", "registry-durable"),
		client: client,
		table:  table,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for updated_at
func (d *Durable) WithClock(now func() time.Time) *Durable {
	d.now = now
	return d
}

// Register implements Registry. The id of an existing name is reused.
func (d *Durable) Register(ctx context.Context, name string, cfg timeseries.ModelConfig) error {
	cfg, err := prepare(name, cfg)
	if err != nil {
		return err
	}

	existing, err := d.Get(ctx, name)

	switch {
	case err == nil:
		cfg.ID = existing.ID
	case errors.Is(err, ErrModelNotFound):
		cfg.ID = timeseries.NewID()
	default:
		return err
	}

	return d.insert(ctx, cfg)
}

// Create appends a config row under a fresh id. Existing rows are never overwritten.
func (d *Durable) Create(ctx context.Context, cfg timeseries.ModelConfig) (uuid.UUID, error) {
	cfg, err := prepare(cfg.ModelName, cfg)
	if err != nil {
		return uuid.Nil, err
	}

	cfg.ID = timeseries.NewID()

	if err := d.insert(ctx, cfg); err != nil {
		return uuid.Nil, err
	}

	return cfg.ID, nil
}

func (d *Durable) insert(ctx context.Context, cfg timeseries.ModelConfig) error {
	row := configRow{
		ID:               cfg.ID,
		ModelName:        cfg.ModelName,
		TargetColumn:     cfg.TargetColumn,
		HistoryWindow:    cfg.HistoryWindow,
		ForecastHorizon:  cfg.ForecastHorizon,
		BackendURL:       cfg.BackendURL,
		Backend:          cfg.Backend,
		AdditionalParams: cfg.AdditionalParams,
		UpdatedAt:        clickhouse.FormatTime(d.now()),
		Version:          timeseries.NewID(),
	}

	if err := d.client.BulkInsert(ctx, d.table, []configRow{row}); err != nil {
		return fmt.Errorf("failed to store config for model %q: %w", cfg.ModelName, err)
	}

	observability.RecordPersisted(d.table, 1)

	d.log.WithFields(logrus.Fields{
		"model":    cfg.ModelName,
		"model_id": cfg.ID,
	}).Debug("Stored model config")

	return nil
}

// Get implements Registry
func (d *Durable) Get(ctx context.Context, name string) (timeseries.ModelConfig, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE model_name = {name:String}
		ORDER BY %s
		LIMIT 1
	`, configColumns, d.table, latestFirst)

	return d.queryConfig(ctx, query, name, clickhouse.StringParam("name", name))
}

// GetConfig returns the most recent config row for a model id
func (d *Durable) GetConfig(ctx context.Context, id uuid.UUID) (timeseries.ModelConfig, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = {id:UUID}
		ORDER BY %s
		LIMIT 1
	`, configColumns, d.table, latestFirst)

	return d.queryConfig(ctx, query, id.String(), clickhouse.UUIDParam("id", id))
}

func (d *Durable) queryConfig(ctx context.Context, query, key string, param clickhouse.Param) (timeseries.ModelConfig, error) {
	var result configResult
	if err := d.client.QueryOne(ctx, query, &result, param); err != nil {
		return timeseries.ModelConfig{}, fmt.Errorf("failed to load model %s: %w", key, err)
	}

	if result.ID == uuid.Nil {
		return timeseries.ModelConfig{}, fmt.Errorf("%w: %s", ErrModelNotFound, key)
	}

	return result.config(), nil
}

// List implements Registry
func (d *Durable) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT model_name
		FROM %s
		ORDER BY model_name
	`, d.table)

	var rows []struct {
		ModelName string `json:"model_name"`
	}

	if err := d.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.ModelName)
	}

	observability.RegisteredModels.Set(float64(len(names)))

	return names, nil
}
