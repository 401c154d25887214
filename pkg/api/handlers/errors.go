package handlers

import (
	"errors"

	"github.com/ethpandaops/tsforecast/pkg/backend"
	"github.com/ethpandaops/tsforecast/pkg/cache"
	"github.com/ethpandaops/tsforecast/pkg/forecast"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/gofiber/fiber/v3"
)

var (
	// ErrModelNotFound is returned when a model is not registered
	ErrModelNotFound = fiber.NewError(fiber.StatusNotFound, "model not found")
	// ErrInvalidBody is returned when a request body cannot be decoded
	ErrInvalidBody = fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	// ErrInvalidLimit is returned for a limit that is not a positive integer
	ErrInvalidLimit = fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	// ErrInvalidMaxAge is returned for a max_age that is not a positive duration
	ErrInvalidMaxAge = fiber.NewError(fiber.StatusBadRequest, "max_age must be a positive duration such as 1h")
)

var badRequest = []error{
	timeseries.ErrModelNameRequired,
	timeseries.ErrTargetColumnRequired,
	timeseries.ErrHorizonRequired,
	backend.ErrUnknownBackend,
	cache.ErrUnknownMode,
	forecast.ErrNoObservations,
	forecast.ErrInvalidMaxAge,
	forecast.ErrModelIDRequired,
	store.ErrInvalidLimit,
}

var badGateway = []error{
	backend.ErrTransport,
	backend.ErrResponse,
	backend.ErrSerialization,
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) (int, string) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	if errors.Is(err, registry.ErrModelNotFound) {
		return fiber.StatusNotFound, err.Error()
	}

	for _, target := range badRequest {
		if errors.Is(err, target) {
			return fiber.StatusBadRequest, err.Error()
		}
	}

	for _, target := range badGateway {
		if errors.Is(err, target) {
			return fiber.StatusBadGateway, err.Error()
		}
	}

	return fiber.StatusInternalServerError, "Internal Server Error"
}

// ErrorHandler renders errors as {"error", "code"} with a status derived from the error
func ErrorHandler(c fiber.Ctx, err error) error {
	code, message := statusFor(err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
