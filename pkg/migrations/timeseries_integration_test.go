//go:build integration

package migrations_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/migrations"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idAt mints a UUIDv7 whose embedded timestamp is at
func idAt(at time.Time) uuid.UUID {
	id := timeseries.NewID()

	var ms [8]byte
	binary.BigEndian.PutUint64(ms[:], uint64(at.UnixMilli()))
	copy(id[0:6], ms[2:8])

	return id
}

func observationsWithIDs(modelID uuid.UUID, ids ...uuid.UUID) []timeseries.Observation {
	base := time.Now().UTC().Truncate(time.Millisecond)
	out := make([]timeseries.Observation, 0, len(ids))

	for i, id := range ids {
		out = append(out, timeseries.Observation{
			ID:           id,
			ModelID:      modelID,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			TargetColumn: "load",
			Value:        float64(i),
		})
	}

	return out
}

func viewRows(ctx context.Context, t *testing.T, client clickhouse.ClientInterface, view string, modelID uuid.UUID) int {
	t.Helper()

	var result struct {
		N uint32 `json:"n"`
	}

	query := fmt.Sprintf("SELECT toUInt32(count()) AS n FROM %s WHERE model_id = {model_id:UUID}", view)
	require.NoError(t, client.QueryOne(ctx, query, &result, clickhouse.UUIDParam("model_id", modelID)))

	return int(result.N)
}

func provisioned(ctx context.Context, t *testing.T, conn *testutil.ClickHouseConnection, database string, cleanStart bool) (clickhouse.ClientInterface, clickhouse.Tables) {
	t.Helper()

	log := logrus.New()
	cfg := &clickhouse.Config{URL: conn.URL, Database: database}

	client, err := clickhouse.NewClient(log, cfg)
	require.NoError(t, err)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Stop() })

	tables := clickhouse.TablesFor(cfg)
	require.NoError(t, migrations.Provision(ctx, log, client, tables, cleanStart))

	return client, tables
}

func TestTimeSeries_ViewCutover(t *testing.T) {
	conn := testutil.NewClickHouseContainer(t)
	ctx := context.Background()

	t.Run("existing install only derives rows after the cut-over", func(t *testing.T) {
		client, tables := provisioned(ctx, t, conn, "tsforecast_existing", false)
		s := store.NewClickHouse(logrus.New(), client, tables)

		modelID := timeseries.NewID()
		later := time.Now().Add(time.Hour)

		require.NoError(t, s.InsertObservations(ctx, observationsWithIDs(modelID,
			timeseries.NewID(),
			timeseries.NewID(),
			idAt(later),
			idAt(later.Add(time.Second)),
		)))

		stored, err := s.RecentObservations(ctx, modelID, 10)
		require.NoError(t, err)
		assert.Len(t, stored, 4)

		assert.Equal(t, 2, viewRows(ctx, t, client, tables.ObservationsView, modelID))
	})

	t.Run("clean install derives every row", func(t *testing.T) {
		client, tables := provisioned(ctx, t, conn, "tsforecast_clean", true)
		s := store.NewClickHouse(logrus.New(), client, tables)

		modelID := timeseries.NewID()

		require.NoError(t, s.InsertObservations(ctx, observationsWithIDs(modelID,
			timeseries.NewID(),
			timeseries.NewID(),
			idAt(time.Now().Add(time.Hour)),
		)))

		assert.Equal(t, 3, viewRows(ctx, t, client, tables.ObservationsView, modelID))
	})
}
