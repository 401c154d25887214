// Package tasks moves forecast persistence onto an asynq queue
package tasks

import "time"

const (
	// TypePersistForecasts is the task type for writing a forecast batch
	TypePersistForecasts = "forecast:persist"
	// DefaultQueue is the queue persistence tasks are enqueued on before prefixing
	DefaultQueue = "persist"
	// DefaultMaxRetry bounds redelivery of a failed persistence task
	DefaultMaxRetry = 3
	// DefaultTimeout bounds a single persistence task
	DefaultTimeout = time.Minute
)
