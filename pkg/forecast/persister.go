package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/tasks"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Persister modes
const (
	PersisterDetached = "detached"
	PersisterQueue    = "queue"
)

// ErrUnknownPersister is returned for an unsupported persistence mode
var ErrUnknownPersister = errors.New("unknown persister")

// DefaultPersistTimeout bounds a detached write
const DefaultPersistTimeout = 30 * time.Second

// Persister takes a forecast batch off the request path. Persist never
// blocks on the write and never reports its outcome to the caller.
type Persister interface {
	Name() string
	Persist(forecasts []timeseries.Forecast)
}

// DetachedPersister writes each batch from an unsupervised goroutine on a
// background context. Batches in flight at process exit are lost.
type DetachedPersister struct {
	log     logrus.FieldLogger
	store   store.Store
	timeout time.Duration
}

// NewDetachedPersister creates a detached persister
func NewDetachedPersister(log logrus.FieldLogger, s store.Store, timeout time.Duration) *DetachedPersister {
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}

	return &DetachedPersister{
		log:     log.WithField("component", "persister-detached"),
		store:   s,
		timeout: timeout,
	}
}

// Name implements Persister
func (p *DetachedPersister) Name() string {
	return PersisterDetached
}

// Persist implements Persister
func (p *DetachedPersister) Persist(forecasts []timeseries.Forecast) {
	if len(forecasts) == 0 {
		return
	}

	log := p.log.WithFields(logrus.Fields{
		"model_id": forecasts[0].ModelID,
		"rows":     len(forecasts),
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.store.InsertForecasts(ctx, forecasts); err != nil {
			observability.RecordPersistFailure(PersisterDetached)
			log.WithError(err).Warn("Failed to persist forecasts")

			return
		}

		log.Debug("Persisted forecasts")
	}()
}

// Enqueuer hands a batch to the persistence queue
type Enqueuer interface {
	EnqueuePersist(ctx context.Context, payload tasks.PersistPayload, opts ...asynq.Option) error
}

// QueuePersister enqueues each batch for a worker to write. The enqueue runs
// on its own goroutine bounded by timeout; failures are logged and counted only.
type QueuePersister struct {
	log     logrus.FieldLogger
	queue   Enqueuer
	now     func() time.Time
	timeout time.Duration
}

// NewQueuePersister creates a queue backed persister
func NewQueuePersister(log logrus.FieldLogger, queue Enqueuer, timeout time.Duration) *QueuePersister {
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}

	return &QueuePersister{
		log:     log.WithField("component", "persister-queue"),
		queue:   queue,
		now:     time.Now,
		timeout: timeout,
	}
}

// Name implements Persister
func (p *QueuePersister) Name() string {
	return PersisterQueue
}

// Persist implements Persister
func (p *QueuePersister) Persist(forecasts []timeseries.Forecast) {
	if len(forecasts) == 0 {
		return
	}

	payload := tasks.PersistPayload{
		ModelID:    forecasts[0].ModelID,
		Forecasts:  forecasts,
		EnqueuedAt: p.now().UTC(),
	}

	log := p.log.WithFields(logrus.Fields{
		"model_id": payload.ModelID,
		"rows":     len(forecasts),
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.queue.EnqueuePersist(ctx, payload); err != nil {
			observability.RecordPersistFailure(PersisterQueue)
			log.WithError(err).Warn("Failed to enqueue forecasts")

			return
		}

		log.Debug("Enqueued forecasts")
	}()
}

// NewPersister builds the persister for mode. queue may be nil unless mode is queue.
func NewPersister(log logrus.FieldLogger, mode string, s store.Store, queue Enqueuer, timeout time.Duration) (Persister, error) {
	switch mode {
	case "", PersisterDetached:
		return NewDetachedPersister(log, s, timeout), nil
	case PersisterQueue:
		if queue == nil {
			return nil, fmt.Errorf("%w: queue persister needs a queue", ErrUnknownPersister)
		}

		return NewQueuePersister(log, queue, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersister, mode)
	}
}

var (
	_ Persister = (*DetachedPersister)(nil)
	_ Persister = (*QueuePersister)(nil)
	_ Enqueuer  = (*tasks.QueueManager)(nil)
)
