package clickhouse_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/internal/testutil"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) clickhouse.ClientInterface {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	client, err := clickhouse.NewClient(logger, &clickhouse.Config{URL: url, Debug: true})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := client.Stop(); err != nil {
			t.Logf("failed to stop client: %v", err)
		}
	})

	return client
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      clickhouse.Config
		expectError bool
	}{
		{
			name:   "valid config with HTTP URL",
			config: clickhouse.Config{URL: "http://localhost:8123"},
		},
		{
			name:   "valid config with HTTPS URL",
			config: clickhouse.Config{URL: "https://localhost:8443"},
		},
		{
			name:        "missing URL",
			config:      clickhouse.Config{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				assert.ErrorIs(t, err, clickhouse.ErrURLRequired)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	config := clickhouse.Config{URL: "http://localhost:8123"}

	config.SetDefaults()

	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.Equal(t, 5*time.Minute, config.InsertTimeout)
	assert.Equal(t, 30*time.Second, config.KeepAlive)
}

func TestConfig_Table(t *testing.T) {
	c := &clickhouse.Config{}
	assert.Equal(t, "TimeSeriesData", c.Table("TimeSeriesData"))

	c.Database = "forecasts"
	assert.Equal(t, "forecasts.TimeSeriesData", c.Table("TimeSeriesData"))

	t.Setenv("TSFORECAST_DATABASE_PREFIX", "test_123_")
	assert.Equal(t, "test_123_forecasts.TimeSeriesData", c.Table("TimeSeriesData"))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := clickhouse.NewClient(logrus.New(), &clickhouse.Config{})
	assert.ErrorIs(t, err, clickhouse.ErrURLRequired)
}

func TestClient_Start(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	client := newTestClient(t, fake.URL)

	require.NoError(t, client.Start())
	require.Len(t, fake.Requests(), 1)
	assert.Equal(t, "SELECT 1", fake.Requests()[0].Query)
}

func TestClient_QueryOne(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	fake.Respond(func(testutil.Request) (int, string) {
		return http.StatusOK, testutil.Rows(map[string]interface{}{"value": 42})
	})

	client := newTestClient(t, fake.URL)

	var result struct {
		Value uint64 `json:"value"`
	}
	err := client.QueryOne(context.Background(), "SELECT toUInt32(42) AS value", &result)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), result.Value)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Query, " FORMAT JSON"))
}

func TestClient_QueryOne_EmptyResult(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	client := newTestClient(t, fake.URL)

	var result struct {
		ID uint64 `json:"id"`
	}
	err := client.QueryOne(context.Background(), "SELECT id FROM empty_table", &result)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.ID)
}

func TestClient_QueryMany(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	fake.Respond(func(testutil.Request) (int, string) {
		return http.StatusOK, testutil.Rows(
			map[string]interface{}{"id": 1, "value": "one"},
			map[string]interface{}{"id": 2, "value": "two"},
			map[string]interface{}{"id": 3, "value": "three"},
		)
	})

	client := newTestClient(t, fake.URL)

	var results []struct {
		ID    uint64 `json:"id"`
		Value string `json:"value"`
	}
	err := client.QueryMany(context.Background(), "SELECT id, value FROM numbers ORDER BY id", &results)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, "one", results[0].Value)
	assert.Equal(t, "three", results[2].Value)
}

func TestClient_QueryMany_RequiresSlicePointer(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	var notSlice struct{}
	err := client.QueryMany(context.Background(), "SELECT 1", &notSlice)
	assert.ErrorIs(t, err, clickhouse.ErrDestMustBePointerToSlice)
}

func TestClient_BoundParams(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	client := newTestClient(t, fake.URL)

	id := uuid.MustParse("01890000-0000-7000-8000-000000000001")
	ts := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)

	var rows []struct{}
	err := client.QueryMany(context.Background(), "SELECT 1 WHERE x = {name:String}", &rows,
		clickhouse.StringParam("name", "o'brien"),
		clickhouse.UUIDParam("model_id", id),
		clickhouse.UintParam("limit", 10),
		clickhouse.TimeParam("since", ts),
	)
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "o'brien", reqs[0].Param("name"))
	assert.Equal(t, id.String(), reqs[0].Param("model_id"))
	assert.Equal(t, "10", reqs[0].Param("limit"))
	assert.Equal(t, "2024-01-01 12:30:00.000", reqs[0].Param("since"))
	assert.NotContains(t, reqs[0].Query, "o'brien")
}

func TestClient_BulkInsert(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	client := newTestClient(t, fake.URL)

	type testRow struct {
		ID    uint64  `json:"id"`
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}

	data := []testRow{
		{ID: 1, Name: "Alice", Score: 95.5},
		{ID: 2, Name: "Bob", Score: 87.3},
	}

	require.NoError(t, client.BulkInsert(context.Background(), "test_db.bulk_table", data))

	reqs := fake.Requests()
	require.Len(t, reqs, 1)

	lines := strings.Split(strings.TrimSpace(reqs[0].Query), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "INSERT INTO test_db.bulk_table FORMAT JSONEachRow", lines[0])
	assert.JSONEq(t, `{"id":1,"name":"Alice","score":95.5}`, lines[1])
	assert.JSONEq(t, `{"id":2,"name":"Bob","score":87.3}`, lines[2])
}

func TestClient_BulkInsert_EmptySlice(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	client := newTestClient(t, fake.URL)

	require.NoError(t, client.BulkInsert(context.Background(), "t", []struct{}{}))
	assert.Empty(t, fake.Requests())
}

func TestClient_BulkInsert_RequiresSlice(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	err := client.BulkInsert(context.Background(), "t", struct{}{})
	assert.ErrorIs(t, err, clickhouse.ErrDataMustBeSlice)
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{
			name:     "exception body",
			body:     testutil.Exception("Table default.missing does not exist"),
			contains: "Table default.missing does not exist",
		},
		{
			name:     "plain text body",
			body:     "Code: 62. DB::Exception: Syntax error",
			contains: "Syntax error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeClickHouse(t)
			fake.Respond(func(testutil.Request) (int, string) {
				return http.StatusInternalServerError, tt.body
			})

			client := newTestClient(t, fake.URL)

			_, err := client.Execute(context.Background(), "SELECT * FROM missing")
			require.Error(t, err)
			assert.ErrorIs(t, err, clickhouse.ErrClickHouseResponse)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "status 500")
		})
	}
}

func TestTableExists(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	fake.Respond(func(req testutil.Request) (int, string) {
		present := 0
		if req.Param("table") == "TimeSeriesData" {
			present = 1
		}
		return http.StatusOK, testutil.Rows(map[string]interface{}{"present": present})
	})

	client := newTestClient(t, fake.URL)
	ctx := context.Background()

	exists, err := clickhouse.TableExists(ctx, client, "", "TimeSeriesData")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = clickhouse.TableExists(ctx, client, "forecasts", "TimeSeriesForecast")
	require.NoError(t, err)
	assert.False(t, exists)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "forecasts", reqs[1].Param("database"))
	assert.Contains(t, reqs[1].Query, "system.tables")
}

func TestHealth(t *testing.T) {
	fake := testutil.NewFakeClickHouse(t)
	client := newTestClient(t, fake.URL)
	require.NoError(t, clickhouse.Health(context.Background(), client))

	fake.Respond(func(testutil.Request) (int, string) {
		return http.StatusServiceUnavailable, "down"
	})
	assert.Error(t, clickhouse.Health(context.Background(), client))
}
