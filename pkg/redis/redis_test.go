package redis_test

import (
	"testing"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	tsredis "github.com/ethpandaops/tsforecast/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cfg := &tsredis.Config{}
	assert.ErrorIs(t, cfg.Validate(), tsredis.ErrAddressRequired)

	cfg.SetDefaults()
	assert.Equal(t, "tsforecast:forecast:abc", cfg.PrefixKey("forecast:abc"))
	assert.Equal(t, "tsforecast:persist", cfg.PrefixQueue("persist"))

	cfg.Prefix = ""
	assert.Equal(t, "persist", cfg.PrefixQueue("persist"))
}

func TestNewClient(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	client, opt, err := tsredis.NewClient(&tsredis.Config{Address: "redis://" + mr.Addr() + "/2"})
	require.NoError(t, err)

	defer client.Close()

	assert.Equal(t, 2, opt.DB)

	asynqOpt := tsredis.NewAsynqRedisOptions(opt)
	assert.Equal(t, mr.Addr(), asynqOpt.Addr)
	assert.Equal(t, 2, asynqOpt.DB)

	_, _, err = tsredis.NewClient(&tsredis.Config{Address: "not a url"})
	assert.Error(t, err)
}
