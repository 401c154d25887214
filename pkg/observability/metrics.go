package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// ForecastRequests counts forecast requests by outcome
	ForecastRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsforecast_forecast_requests_total",
			Help: "Total number of forecast requests",
		},
		[]string{"model", "backend", "status"}, // status: success, failed, cached
	)

	// BackendDuration measures forecast backend call latency in seconds
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsforecast_backend_duration_seconds",
			Help:    "Forecast backend call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"backend", "status"},
	)

	// PersistedRows counts rows written to the store
	PersistedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsforecast_persisted_rows_total",
			Help: "Total number of rows persisted",
		},
		[]string{"table"},
	)

	// PersistFailures counts asynchronous persistence failures. These never reach callers.
	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsforecast_persist_failures_total",
			Help: "Total number of forecast persistence failures",
		},
		[]string{"persister"},
	)

	// CacheLookups counts forecast cache lookups
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsforecast_cache_lookups_total",
			Help: "Total number of forecast cache lookups",
		},
		[]string{"result"}, // result: hit, miss, expired, error
	)

	// RegisteredModels tracks the number of known model names
	RegisteredModels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tsforecast_registered_models",
			Help: "Number of registered models",
		},
	)

	// ClickHouseQueries counts total number of ClickHouse queries executed
	ClickHouseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsforecast_clickhouse_queries_total",
			Help: "Total number of ClickHouse queries executed",
		},
		[]string{"query_type", "status"}, // query_type: select, insert, execute
	)

	// ClickHouseQueryDuration measures ClickHouse query execution time
	ClickHouseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsforecast_clickhouse_query_duration_seconds",
			Help:    "ClickHouse query execution time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"query_type"},
	)

	// MigrationsApplied counts schema migrations by result
	MigrationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsforecast_migrations_total",
			Help: "Total number of schema migration runs",
		},
		[]string{"migration", "result"}, // result: applied, skipped, failed
	)
)

// RecordForecast records a forecast request outcome
func RecordForecast(model, backend, status string) {
	ForecastRequests.WithLabelValues(model, backend, status).Inc()
}

// RecordBackendCall records backend latency
func RecordBackendCall(backend, status string, duration float64) {
	BackendDuration.WithLabelValues(backend, status).Observe(duration)
}

// RecordPersisted records rows written to a table
func RecordPersisted(table string, count int) {
	PersistedRows.WithLabelValues(table).Add(float64(count))
}

// RecordPersistFailure records a swallowed persistence failure
func RecordPersistFailure(persister string) {
	PersistFailures.WithLabelValues(persister).Inc()
}

// RecordCacheLookup records a cache lookup result
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordClickHouseQuery records ClickHouse query metrics
func RecordClickHouseQuery(queryType, status string, duration float64) {
	ClickHouseQueries.WithLabelValues(queryType, status).Inc()
	ClickHouseQueryDuration.WithLabelValues(queryType).Observe(duration)
}

// RecordMigration records a migration run
func RecordMigration(migration, result string) {
	MigrationsApplied.WithLabelValues(migration, result).Inc()
}
