// Package backend calls forecasting backends. The set of backends is closed:
// each supported type is a variant constructed by New.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Backend types
const (
	TypeMindsDB = "mindsdb"
	TypeLocal   = "local"
)

// DefaultTimeout bounds a single backend call when the caller sets no deadline
const DefaultTimeout = 30 * time.Second

// Request is one forecast call
type Request struct {
	ModelName    string
	TargetColumn string
	Horizon      uint32
	Observations []timeseries.Observation
	Params       map[string]string
}

// Response is the backend outcome of a forecast call
type Response struct {
	Prediction  []float64
	Confidence  float64
	Provider    string
	RawResponse string
}

// Chunk is one element of a streamed forecast. The last chunk has Done set.
type Chunk struct {
	Response *Response
	Err      error
	Done     bool
}

// BatchResult is the outcome of one request of a batch
type BatchResult struct {
	Index    int
	Response *Response
	Err      error
}

// Batch holds the results of a batch inference
type Batch struct {
	ID      uuid.UUID
	Results []BatchResult
}

// Provider is implemented by every backend variant
type Provider interface {
	// Name identifies the backend in errors and metrics
	Name() string
	// Infer performs a single forecast call. There is no retry.
	Infer(ctx context.Context, req Request) (*Response, error)
	// InferStream delivers the forecast as chunks on the returned channel
	InferStream(ctx context.Context, req Request) (<-chan Chunk, error)
	// StartBatchInference runs requests concurrently and collects per-request results in request order
	StartBatchInference(ctx context.Context, reqs []Request) (*Batch, error)
}

// Config selects and configures a backend variant
type Config struct {
	Type    string        `yaml:"type"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeMindsDB
	}

	if c.URL == "" && c.Type == TypeMindsDB {
		c.URL = timeseries.DefaultBackendURL
	}

	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// ConfigFor derives the backend config of a registered model
func ConfigFor(cfg timeseries.ModelConfig) Config {
	return Config{Type: cfg.Backend, URL: cfg.BackendURL}
}

// New constructs the backend variant named by cfg.Type
func New(log logrus.FieldLogger, cfg Config, client *http.Client) (Provider, error) {
	cfg.SetDefaults()

	switch cfg.Type {
	case TypeMindsDB:
		return NewMindsDB(log, cfg, client), nil
	case TypeLocal:
		return NewLocal(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
}

// Factory resolves the backend for a model config
type Factory func(cfg timeseries.ModelConfig) (Provider, error)

// NewFactory returns a Factory sharing one HTTP client across backends
func NewFactory(log logrus.FieldLogger, timeout time.Duration) Factory {
	client := &http.Client{Timeout: timeout}

	return func(cfg timeseries.ModelConfig) (Provider, error) {
		bc := ConfigFor(cfg)
		bc.Timeout = timeout

		return New(log, bc, client)
	}
}

// streamOnce adapts a single Infer call to a stream of one chunk
func streamOnce(ctx context.Context, p Provider, req Request) (<-chan Chunk, error) {
	resp, err := p.Infer(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk, 1)
	ch <- Chunk{Response: resp, Done: true}
	close(ch)

	return ch, nil
}

// DefaultBatchConcurrency bounds in-flight requests of one batch
const DefaultBatchConcurrency = 4

// batchConcurrent runs the requests with bounded concurrency. Results keep
// request order. Per-request failures are recorded in the batch; only
// cancellation aborts it.
func batchConcurrent(ctx context.Context, p Provider, reqs []Request) (*Batch, error) {
	batch := &Batch{
		ID:      timeseries.NewID(),
		Results: make([]BatchResult, len(reqs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultBatchConcurrency)

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			resp, err := p.Infer(gctx, req)
			batch.Results[i] = BatchResult{Index: i, Response: resp, Err: err}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s cancelled: %w", batch.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s cancelled: %w", batch.ID, err)
	}

	return batch, nil
}

var (
	_ Provider = (*MindsDB)(nil)
	_ Provider = (*Local)(nil)
)
