// Package cache stores forecast results in Redis keyed by data fingerprint.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/fingerprint"
	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// ErrUnknownMode is returned when parsing an unsupported cache mode
var ErrUnknownMode = errors.New("unknown cache mode")

// Mode controls whether a request reads and writes the cache
type Mode string

// Cache modes
const (
	ModeOff       Mode = "off"
	ModeOn        Mode = "on"
	ModeReadOnly  Mode = "read_only"
	ModeWriteOnly Mode = "write_only"
)

// ParseMode validates a mode string. Empty means off.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeOff:
		return ModeOff, nil
	case ModeOn, ModeReadOnly, ModeWriteOnly:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Options are per-request cache settings
type Options struct {
	Mode Mode `json:"mode"`
	// MaxAge bounds how old a cached result may be. Zero uses the entry TTL.
	MaxAge time.Duration `json:"max_age"`
}

// CanRead reports whether the request may be served from cache
func (o Options) CanRead() bool {
	return o.Mode == ModeOn || o.Mode == ModeReadOnly
}

// CanWrite reports whether the request result may be cached
func (o Options) CanWrite() bool {
	return o.Mode == ModeOn || o.Mode == ModeWriteOnly
}

// Entry is a cached forecast result
type Entry struct {
	Prediction []float64     `json:"prediction"`
	Confidence float64       `json:"confidence"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl"`
}

// Result converts the entry to the caller facing result
func (e *Entry) Result() *timeseries.Result {
	return &timeseries.Result{Prediction: e.Prediction, Confidence: e.Confidence}
}

// Cache reads and writes forecast results
type Cache struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// New creates a cache. prefix namespaces keys, e.g. "tsforecast".
func New(client *redis.Client, prefix string) *Cache {
	keyPrefix := "forecast:"
	if prefix != "" {
		keyPrefix = prefix + ":forecast:"
	}

	return &Cache{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// WithClock overrides the clock used for expiry checks
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Key returns the Redis key for a fingerprint
func (c *Cache) Key(key fingerprint.Key) string {
	return c.keyPrefix + key.String()
}

// Get returns the cached entry or nil on a miss. Entries older than maxAge,
// or than their own TTL when maxAge is zero, are deleted and reported as misses.
func (c *Cache) Get(ctx context.Context, key fingerprint.Key, maxAge time.Duration) (*Entry, error) {
	redisKey := c.Key(key)

	data, err := c.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.RecordCacheLookup("miss")
			return nil, nil
		}

		observability.RecordCacheLookup("error")

		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		observability.RecordCacheLookup("error")
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	limit := maxAge
	if limit == 0 {
		limit = entry.TTL
	}

	if limit > 0 && c.now().Sub(entry.CreatedAt) > limit {
		if err := c.client.Del(ctx, redisKey).Err(); err != nil {
			observability.RecordCacheLookup("error")
			return nil, fmt.Errorf("failed to evict expired cache entry: %w", err)
		}

		observability.RecordCacheLookup("expired")

		return nil, nil
	}

	observability.RecordCacheLookup("hit")

	return &entry, nil
}

// Set stores a result. A zero ttl keeps the entry until invalidated.
func (c *Cache) Set(ctx context.Context, key fingerprint.Key, result *timeseries.Result, ttl time.Duration) error {
	data, err := json.Marshal(Entry{
		Prediction: result.Prediction,
		Confidence: result.Confidence,
		CreatedAt:  c.now().UTC(),
		TTL:        ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.Key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// Invalidate removes a cached result
func (c *Cache) Invalidate(ctx context.Context, key fingerprint.Key) error {
	return c.client.Del(ctx, c.Key(key)).Err()
}
