package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	"github.com/ethpandaops/tsforecast/pkg/cache"
	"github.com/ethpandaops/tsforecast/pkg/fingerprint"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(value float64) fingerprint.Key {
	return fingerprint.Generate("m1", "mindsdb", "load", 24, []timeseries.Observation{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Value: value},
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in       string
		expected cache.Mode
		err      bool
	}{
		{in: "", expected: cache.ModeOff},
		{in: "off", expected: cache.ModeOff},
		{in: "on", expected: cache.ModeOn},
		{in: "read_only", expected: cache.ModeReadOnly},
		{in: "write_only", expected: cache.ModeWriteOnly},
		{in: "sometimes", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := cache.ParseMode(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, cache.ErrUnknownMode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestOptions_ReadWrite(t *testing.T) {
	assert.False(t, cache.Options{}.CanRead())
	assert.False(t, cache.Options{}.CanWrite())
	assert.True(t, cache.Options{Mode: cache.ModeOn}.CanRead())
	assert.True(t, cache.Options{Mode: cache.ModeOn}.CanWrite())
	assert.True(t, cache.Options{Mode: cache.ModeReadOnly}.CanRead())
	assert.False(t, cache.Options{Mode: cache.ModeReadOnly}.CanWrite())
	assert.False(t, cache.Options{Mode: cache.ModeWriteOnly}.CanRead())
	assert.True(t, cache.Options{Mode: cache.ModeWriteOnly}.CanWrite())
}

func TestCache_SetGet(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	c := cache.New(client, "tsforecast")
	key := testKey(1)

	entry, err := c.Get(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Nil(t, entry)

	result := &timeseries.Result{Prediction: []float64{1, 2, 3}, Confidence: 0.89}
	require.NoError(t, c.Set(context.Background(), key, result, time.Hour))

	assert.True(t, mr.Exists("tsforecast:forecast:"+key.String()))
	assert.Equal(t, time.Hour, mr.TTL("tsforecast:forecast:"+key.String()))

	entry, err = c.Get(context.Background(), key, 0)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, result, entry.Result())

	other, err := c.Get(context.Background(), testKey(2), 0)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCache_MaxAgeExpiresEntries(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cache.New(client, "").WithClock(func() time.Time { return now })
	key := testKey(1)

	require.NoError(t, c.Set(context.Background(), key, &timeseries.Result{Prediction: []float64{1}}, 0))

	now = now.Add(10 * time.Minute)

	entry, err := c.Get(context.Background(), key, time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, entry)

	entry, err = c.Get(context.Background(), key, 5*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.False(t, mr.Exists("forecast:"+key.String()))
}

var errReadOnly = errors.New("READONLY You can't write against a read only replica")

// failingDel fails every DEL command and passes everything else through
type failingDel struct{}

func (failingDel) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (failingDel) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "del" {
			cmd.SetErr(errReadOnly)
			return errReadOnly
		}

		return next(ctx, cmd)
	}
}

func (failingDel) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

var _ redis.Hook = failingDel{}

func TestCache_ExpiredEntryEvictionFailure(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	client.AddHook(failingDel{})

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cache.New(client, "").WithClock(func() time.Time { return now })
	key := testKey(1)

	require.NoError(t, c.Set(context.Background(), key, &timeseries.Result{Prediction: []float64{1}}, 0))

	now = now.Add(10 * time.Minute)

	entry, err := c.Get(context.Background(), key, 5*time.Minute)
	require.ErrorIs(t, err, errReadOnly)
	assert.Nil(t, entry)
	assert.True(t, mr.Exists("forecast:"+key.String()))
}

func TestCache_EntryTTLAppliesWithoutMaxAge(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cache.New(client, "p").WithClock(func() time.Time { return now })
	key := testKey(1)

	require.NoError(t, c.Set(context.Background(), key, &timeseries.Result{Prediction: []float64{1}}, time.Minute))

	now = now.Add(2 * time.Minute)

	entry, err := c.Get(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_Invalidate(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.New(client, "p")
	key := testKey(1)

	require.NoError(t, c.Set(context.Background(), key, &timeseries.Result{Prediction: []float64{1}}, time.Hour))
	require.NoError(t, c.Invalidate(context.Background(), key))

	entry, err := c.Get(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_CorruptEntry(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	c := cache.New(client, "p")
	key := testKey(1)

	require.NoError(t, mr.Set(c.Key(key), "not json"))

	_, err := c.Get(context.Background(), key, 0)
	assert.Error(t, err)
}
