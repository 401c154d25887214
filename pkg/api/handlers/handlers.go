// Package handlers implements the request handlers for the forecasting API.
package handlers

import (
	"strconv"

	"github.com/ethpandaops/tsforecast/pkg/forecast"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// DefaultLimit is used when a read request carries no limit
const DefaultLimit = 100

// Server serves model registration, forecasting and history reads
type Server struct {
	registry  registry.Registry
	forecasts forecast.Service
	log       logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(reg registry.Registry, forecasts forecast.Service, log logrus.FieldLogger) *Server {
	return &Server{
		registry:  reg,
		forecasts: forecasts,
		log:       log.WithField("component", "api.handlers"),
	}
}

// Register mounts the handlers on router
func (s *Server) Register(router fiber.Router) {
	router.Post("/models", s.RegisterModel)
	router.Get("/models", s.ListModels)
	router.Get("/models/:name", s.GetModel)
	router.Post("/models/:name/forecast", s.Forecast)
	router.Get("/models/:name/forecasts", s.RecentForecasts)
	router.Post("/models/:name/observations", s.AddObservations)
	router.Get("/models/:name/observations", s.RecentObservations)
}

func parseLimit(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, ErrInvalidLimit
	}

	return limit, nil
}
