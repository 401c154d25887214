//go:build integration

package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/migrations"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurable_LatestWriteWinsWithinOneMillisecond(t *testing.T) {
	conn := testutil.NewClickHouseContainer(t)
	log := logrus.New()
	ctx := context.Background()

	cfg := &clickhouse.Config{URL: conn.URL, Database: "tsforecast_registry"}
	client, err := clickhouse.NewClient(log, cfg)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	tables := clickhouse.TablesFor(cfg)
	require.NoError(t, migrations.Provision(ctx, log, client, tables, true))

	frozen := time.Now().UTC().Truncate(time.Millisecond)
	reg := registry.NewDurable(log, client, tables.ModelConfigs).
		WithClock(func() time.Time { return frozen })

	for _, target := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, reg.Register(ctx, "m1", timeseries.ModelConfig{TargetColumn: target}))

		latest, err := reg.Get(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, target, latest.TargetColumn)

		byID, err := reg.GetConfig(ctx, latest.ID)
		require.NoError(t, err)
		assert.Equal(t, target, byID.TargetColumn)
	}
}
