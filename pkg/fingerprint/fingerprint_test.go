package fingerprint

import (
	"math"
	"testing"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObservations() []timeseries.Observation {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	return []timeseries.Observation{
		{Timestamp: base, Value: 1.0, TargetColumn: "value"},
		{Timestamp: base.Add(time.Hour), Value: 2.0, TargetColumn: "value"},
	}
}

func TestGenerate_IdenticalDataSameKey(t *testing.T) {
	data1 := testObservations()
	data2 := testObservations()

	key1 := Generate("test_model", "mindsdb", "value", 30, data1)
	key2 := Generate("test_model", "mindsdb", "value", 30, data2)

	assert.Equal(t, key1, key2)
	assert.Equal(t, key1.String(), key2.String())
	assert.Equal(t, key1.Short(), key2.Short())
}

func TestGenerate_SingleValueChangeChangesKey(t *testing.T) {
	data1 := testObservations()
	data3 := testObservations()
	data3[1].Value = 3.0

	key1 := Generate("test_model", "mindsdb", "value", 30, data1)
	key3 := Generate("test_model", "mindsdb", "value", 30, data3)

	assert.NotEqual(t, key1, key3)
}

func TestGenerate_OrderSensitive(t *testing.T) {
	data := testObservations()
	reversed := []timeseries.Observation{data[1], data[0]}

	assert.NotEqual(t,
		Generate("m", "mindsdb", "value", 30, data),
		Generate("m", "mindsdb", "value", 30, reversed),
	)
}

func TestGenerate_IdentityFieldsChangeKey(t *testing.T) {
	data := testObservations()
	base := Generate("m", "mindsdb", "value", 30, data)

	tests := []struct {
		name string
		key  Key
	}{
		{name: "model name", key: Generate("m2", "mindsdb", "value", 30, data)},
		{name: "provider", key: Generate("m", "local", "value", 30, data)},
		{name: "target column", key: Generate("m", "mindsdb", "other", 30, data)},
		{name: "history window", key: Generate("m", "mindsdb", "value", 31, data)},
		{name: "field boundary", key: Generate("mm", "indsdb", "value", 30, data)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.key)
		})
	}
}

func TestGenerate_IgnoresIdentifiers(t *testing.T) {
	data1 := testObservations()
	data2 := testObservations()
	data2[0].ID = uuid.New()
	data2[0].ModelID = uuid.New()

	assert.Equal(t,
		Generate("m", "mindsdb", "value", 30, data1),
		Generate("m", "mindsdb", "value", 30, data2),
	)
}

func TestGenerate_FeatureOrderIndependent(t *testing.T) {
	data1 := testObservations()
	data1[0].AdditionalFeatures = map[string]string{"a": "1", "b": "2", "c": "3"}

	data2 := testObservations()
	data2[0].AdditionalFeatures = map[string]string{"c": "3", "a": "1", "b": "2"}

	data3 := testObservations()
	data3[0].AdditionalFeatures = map[string]string{"a": "1", "b": "2", "c": "4"}

	assert.Equal(t, Generate("m", "p", "value", 1, data1), Generate("m", "p", "value", 1, data2))
	assert.NotEqual(t, Generate("m", "p", "value", 1, data1), Generate("m", "p", "value", 1, data3))
}

func TestGenerate_TimezoneNormalized(t *testing.T) {
	data1 := testObservations()
	data2 := testObservations()

	loc := time.FixedZone("UTC+2", 2*60*60)
	data2[0].Timestamp = data2[0].Timestamp.In(loc)

	assert.Equal(t, Generate("m", "p", "value", 1, data1), Generate("m", "p", "value", 1, data2))
}

func TestGenerate_NonFiniteValues(t *testing.T) {
	data1 := testObservations()
	data1[0].Value = math.NaN()

	data2 := testObservations()
	data2[0].Value = math.Inf(1)

	assert.NotEqual(t, Generate("m", "p", "value", 1, data1), Generate("m", "p", "value", 1, data2))
	assert.Equal(t, Generate("m", "p", "value", 1, data1), Generate("m", "p", "value", 1, data1))
}

func TestKey_String(t *testing.T) {
	key := Generate("m", "p", "value", 1, nil)

	s := key.String()
	require.Len(t, s, Size*2)
	assert.NotEqual(t, Key{}, key)
}
