package worker_test

import (
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config worker.Config
		err    error
	}{
		{name: "valid", config: worker.Config{Concurrency: 2, Queue: "persist"}},
		{name: "zero concurrency", config: worker.Config{Queue: "persist"}, err: worker.ErrInvalidConcurrency},
		{name: "missing queue", config: worker.Config{Concurrency: 1}, err: worker.ErrQueueRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	_, err := worker.NewService(logrus.New(), &worker.Config{}, store.NewMemory(), &redis.Options{})
	assert.ErrorIs(t, err, worker.ErrInvalidConcurrency)
}

func TestService_StopWithoutStart(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	svc, err := worker.NewService(logrus.New(), &worker.Config{
		Concurrency:     1,
		Queue:           "persist",
		ShutdownTimeout: time.Second,
	}, store.NewMemory(), &redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)

	assert.NoError(t, svc.Stop())
}
