// Package fingerprint derives stable cache keys for forecast requests
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/goccy/go-json"
	"github.com/zeebo/blake3"
)

// Size is the length of a key in bytes
const Size = 32

// Key identifies a (model, config, data) triple
type Key [Size]byte

// String returns the hex encoding of the key
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first eight bytes of the key as an integer
func (k Key) Short() uint64 {
	return binary.BigEndian.Uint64(k[:8])
}

// canonicalObservation is the serialized form hashed for each point.
// Only content fields take part; ids and owners do not.
type canonicalObservation struct {
	Timestamp          string      `json:"timestamp"`
	Value              float64     `json:"value"`
	AdditionalFeatures [][2]string `json:"additional_features"`
}

// Generate computes the cache key for a forecast request. Observations are
// hashed in the given order.
func Generate(modelName, providerName, targetColumn string, historyWindow uint32, observations []timeseries.Observation) Key {
	dataHash := HashObservations(observations)

	return FromDataHash(modelName, providerName, targetColumn, historyWindow, dataHash)
}

// FromDataHash combines request identity with a precomputed content hash
func FromDataHash(modelName, providerName, targetColumn string, historyWindow uint32, dataHash [Size]byte) Key {
	h := blake3.New()

	writeField(h, modelName)
	writeField(h, providerName)
	writeField(h, targetColumn)

	var window [4]byte
	binary.BigEndian.PutUint32(window[:], historyWindow)
	_, _ = h.Write(window[:])
	_, _ = h.Write(dataHash[:])

	var key Key
	copy(key[:], h.Sum(nil))

	return key
}

// HashObservations hashes the canonical form of each observation in sequence
func HashObservations(observations []timeseries.Observation) [Size]byte {
	h := blake3.New()

	for i := range observations {
		_, _ = h.Write(canonicalBytes(&observations[i]))
	}

	var out [Size]byte
	copy(out[:], h.Sum(nil))

	return out
}

func canonicalBytes(o *timeseries.Observation) []byte {
	keys := make([]string, 0, len(o.AdditionalFeatures))
	for k := range o.AdditionalFeatures {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	features := make([][2]string, 0, len(keys))
	for _, k := range keys {
		features = append(features, [2]string{k, o.AdditionalFeatures[k]})
	}

	data, err := json.Marshal(canonicalObservation{
		Timestamp:          o.Timestamp.UTC().Format(time.RFC3339Nano),
		Value:              o.Value,
		AdditionalFeatures: features,
	})
	if err != nil {
		// Only NaN/Inf values fail to encode; fall back to their textual form
		return []byte(o.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatFloat(o.Value, 'g', -1, 64))
	}

	return data
}

// writeField writes a length-prefixed string so adjacent fields cannot run together
func writeField(h *blake3.Hasher, s string) {
	var l [8]byte
	binary.BigEndian.PutUint64(l[:], uint64(len(s)))
	_, _ = h.Write(l[:])
	_, _ = h.Write([]byte(s))
}
