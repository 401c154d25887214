package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TaskHandler writes dequeued forecast batches to the store
type TaskHandler struct {
	log   logrus.FieldLogger
	store store.Store
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(log logrus.FieldLogger, s store.Store) *TaskHandler {
	return &TaskHandler{
		log:   log.WithField("component", "task-handler"),
		store: s,
	}
}

// Routes returns the task type to handler mapping
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypePersistForecasts: h.HandlePersist,
	}
}

// HandlePersist writes one forecast batch. Malformed payloads are not retried.
func (h *TaskHandler) HandlePersist(ctx context.Context, t *asynq.Task) error {
	var payload PersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordPersistFailure("queue")
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	log := h.log.WithFields(logrus.Fields{
		"model_id": payload.ModelID,
		"rows":     len(payload.Forecasts),
		"queued":   time.Since(payload.EnqueuedAt).String(),
	})

	if err := h.store.InsertForecasts(ctx, payload.Forecasts); err != nil {
		observability.RecordPersistFailure("queue")
		log.WithError(err).Warn("Failed to persist forecast batch")

		return fmt.Errorf("failed to persist batch %s: %w", payload.UniqueID(), err)
	}

	log.Debug("Persisted forecast batch")

	return nil
}
