package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

// ErrEmptyBatch is returned when enqueueing a payload with no rows
var ErrEmptyBatch = errors.New("forecast batch is empty")

// QueueManager enqueues persistence tasks
type QueueManager struct {
	client *asynq.Client
	queue  string
}

// NewQueueManager creates a queue manager enqueueing onto queue
func NewQueueManager(redisOpt *asynq.RedisClientOpt, queue string) *QueueManager {
	return &QueueManager{
		client: asynq.NewClient(*redisOpt),
		queue:  queue,
	}
}

// Queue returns the queue tasks are enqueued on
func (q *QueueManager) Queue() string {
	return q.queue
}

// EnqueuePersist enqueues a forecast batch for writing
func (q *QueueManager) EnqueuePersist(ctx context.Context, payload PersistPayload, opts ...asynq.Option) error {
	if len(payload.Forecasts) == 0 {
		return ErrEmptyBatch
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	task := asynq.NewTask(TypePersistForecasts, data)

	allOpts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(q.queue),
		asynq.MaxRetry(DefaultMaxRetry),
		asynq.Timeout(DefaultTimeout),
	}
	allOpts = append(allOpts, opts...)

	if _, err := q.client.EnqueueContext(ctx, task, allOpts...); err != nil {
		return fmt.Errorf("failed to enqueue batch %s: %w", payload.UniqueID(), err)
	}

	return nil
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	return q.client.Close()
}
