package clickhouse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DateTimeLayout is the text form accepted by DateTime64(3) columns in JSONEachRow
const DateTimeLayout = "2006-01-02 15:04:05.000"

// Param is a query parameter bound server side to a {name:Type} placeholder
type Param struct {
	Name  string
	Value string
}

// StringParam binds a String placeholder
func StringParam(name, value string) Param {
	return Param{Name: name, Value: value}
}

// UUIDParam binds a UUID placeholder
func UUIDParam(name string, value uuid.UUID) Param {
	return Param{Name: name, Value: value.String()}
}

// UintParam binds an unsigned integer placeholder
func UintParam(name string, value uint64) Param {
	return Param{Name: name, Value: strconv.FormatUint(value, 10)}
}

// TimeParam binds a DateTime64(3) placeholder in UTC
func TimeParam(name string, value time.Time) Param {
	return Param{Name: name, Value: FormatTime(value)}
}

// FormatTime renders a time for DateTime64(3, 'UTC') columns
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// TableExists reports whether a table or view exists. An empty database
// resolves to the server's current database.
func TableExists(ctx context.Context, c ClientInterface, database, table string) (bool, error) {
	query := `
		SELECT toUInt8(count() > 0) AS present
		FROM system.tables
		WHERE database = if({database:String} = '', currentDatabase(), {database:String})
		  AND name = {table:String}
	`

	var result struct {
		Present uint8 `json:"present"`
	}

	if err := c.QueryOne(ctx, query, &result,
		StringParam("database", database),
		StringParam("table", table),
	); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}

	return result.Present == 1, nil
}

// Health checks the server answers queries
func Health(ctx context.Context, c ClientInterface) error {
	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("clickhouse health check failed: %w", err)
	}

	return nil
}

// Table names of the forecasting schema
const (
	TableObservations     = "TimeSeriesData"
	TableForecasts        = "TimeSeriesForecast"
	TableModelConfigs     = "TimeSeriesModelConfig"
	ViewObservationsModel = "TimeSeriesDataByModelView"
)

// Tables holds the fully qualified schema object names for one database
type Tables struct {
	Database         string
	Observations     string
	Forecasts        string
	ModelConfigs     string
	ObservationsView string
}

// TablesFor qualifies the schema object names with the configured database
func TablesFor(cfg *Config) Tables {
	database := ""
	if cfg.Database != "" {
		database = cfg.MapDatabase(cfg.Database)
	}

	return Tables{
		Database:         database,
		Observations:     cfg.Table(TableObservations),
		Forecasts:        cfg.Table(TableForecasts),
		ModelConfigs:     cfg.Table(TableModelConfigs),
		ObservationsView: cfg.Table(ViewObservationsModel),
	}
}
