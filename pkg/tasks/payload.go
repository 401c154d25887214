package tasks

import (
	"time"

	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/google/uuid"
)

// PersistPayload carries one forecast batch, one row per horizon step
type PersistPayload struct {
	ModelID    uuid.UUID             `json:"model_id"`
	Forecasts  []timeseries.Forecast `json:"forecasts"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}

// UniqueID identifies the batch by its first row. Redelivered or re-enqueued
// batches share the id so rows are written once.
func (p PersistPayload) UniqueID() string {
	if len(p.Forecasts) == 0 {
		return "forecast:" + p.ModelID.String()
	}

	return "forecast:" + p.Forecasts[0].ID.String()
}
