package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RegisterAndGet(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory(logrus.New())

	err := reg.Register(ctx, "m1", timeseries.ModelConfig{
		TargetColumn:    "load",
		HistoryWindow:   24,
		ForecastHorizon: 12,
	})
	require.NoError(t, err)

	cfg, err := reg.Get(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", cfg.ModelName)
	assert.Equal(t, "load", cfg.TargetColumn)
	assert.Equal(t, uint32(24), cfg.HistoryWindow)
	assert.Equal(t, uint32(12), cfg.ForecastHorizon)
	assert.Equal(t, timeseries.DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, timeseries.DefaultBackend, cfg.Backend)
	assert.NotEqual(t, [16]byte{}, [16]byte(cfg.ID))
	assert.False(t, cfg.UpdatedAt.IsZero())
}

func TestMemory_GetUnknown(t *testing.T) {
	reg := registry.NewMemory(logrus.New())

	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
}

func TestMemory_ReRegisterLastWriterWins(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory(logrus.New())

	require.NoError(t, reg.Register(ctx, "m1", timeseries.ModelConfig{TargetColumn: "a"}))
	first, err := reg.Get(ctx, "m1")
	require.NoError(t, err)

	require.NoError(t, reg.Register(ctx, "m1", timeseries.ModelConfig{TargetColumn: "b", HistoryWindow: 5}))
	second, err := reg.Get(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b", second.TargetColumn)
	assert.Equal(t, uint32(5), second.HistoryWindow)

	names, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, names)
}

func TestMemory_RejectsInvalidConfig(t *testing.T) {
	reg := registry.NewMemory(logrus.New())

	err := reg.Register(context.Background(), "m1", timeseries.ModelConfig{})
	assert.ErrorIs(t, err, timeseries.ErrTargetColumnRequired)

	err = reg.Register(context.Background(), "", timeseries.ModelConfig{TargetColumn: "a"})
	assert.ErrorIs(t, err, timeseries.ErrModelNameRequired)
}

func TestMemory_List(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory(logrus.New())

	names, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(ctx, name, timeseries.ModelConfig{TargetColumn: "v"}))
	}

	names, err = reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestMemory_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory(logrus.New())

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			name := fmt.Sprintf("model-%d", i%10)
			assert.NoError(t, reg.Register(ctx, name, timeseries.ModelConfig{TargetColumn: "v"}))

			_, err := reg.Get(ctx, name)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	names, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 10)
}

func TestMemory_IsolatedInstances(t *testing.T) {
	ctx := context.Background()
	a := registry.NewMemory(logrus.New())
	b := registry.NewMemory(logrus.New())

	require.NoError(t, a.Register(ctx, "m1", timeseries.ModelConfig{TargetColumn: "v"}))

	_, err := b.Get(ctx, "m1")
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
}
