//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/migrations"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouse_RoundTrip(t *testing.T) {
	conn := testutil.NewClickHouseContainer(t)
	log := logrus.New()
	ctx := context.Background()

	cfg := &clickhouse.Config{URL: conn.URL, Database: "tsforecast_it"}
	client, err := clickhouse.NewClient(log, cfg)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	tables := clickhouse.TablesFor(cfg)
	require.NoError(t, migrations.Provision(ctx, log, client, tables, true))

	// a second run finds everything in place
	require.NoError(t, migrations.Provision(ctx, log, client, tables, true))

	reg := registry.NewDurable(log, client, tables.ModelConfigs)
	require.NoError(t, reg.Register(ctx, "m1", timeseries.ModelConfig{TargetColumn: "load"}))

	model, err := reg.Get(ctx, "m1")
	require.NoError(t, err)

	s := store.NewClickHouse(log, client, tables)
	base := time.Now().UTC().Truncate(time.Millisecond)

	var observations []timeseries.Observation
	for i := 0; i < 5; i++ {
		observations = append(observations, timeseries.Observation{
			ID:           timeseries.NewID(),
			ModelID:      model.ID,
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			TargetColumn: "load",
			Value:        float64(i),
		})
	}

	require.NoError(t, s.InsertObservations(ctx, observations))

	recent, err := s.RecentObservations(ctx, model.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 2.0, recent[0].Value)
	assert.Equal(t, 4.0, recent[2].Value)

	forecasts := []timeseries.Forecast{
		{ID: timeseries.NewID(), ModelID: model.ID, Timestamp: base.Add(-3 * time.Hour), TargetColumn: "load", PredictedValue: 1, Confidence: 0.89},
		{ID: timeseries.NewID(), ModelID: model.ID, Timestamp: base.Add(time.Hour), TargetColumn: "load", PredictedValue: 2, Confidence: 0.89},
	}
	require.NoError(t, s.InsertForecasts(ctx, forecasts))

	points, err := s.RecentForecasts(ctx, model.ID, 10, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2.0, points[0].Value)
	assert.InDelta(t, 0.89, points[0].Confidence, 1e-9)
}
