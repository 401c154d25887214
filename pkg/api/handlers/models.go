package handlers

import (
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
)

// RegisterModelRequest is the body of POST /models
type RegisterModelRequest struct {
	ModelName        string            `json:"model_name"`
	TargetColumn     string            `json:"target_column"`
	HistoryWindow    uint32            `json:"history_window"`
	ForecastHorizon  uint32            `json:"forecast_horizon"`
	BackendURL       string            `json:"backend_url"`
	Backend          string            `json:"backend"`
	AdditionalParams map[string]string `json:"additional_params"`
}

// RegisterModel handles POST /api/v1/models
func (s *Server) RegisterModel(c fiber.Ctx) error {
	var req RegisterModelRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return ErrInvalidBody
	}

	cfg := timeseries.ModelConfig{
		ModelName:        req.ModelName,
		TargetColumn:     req.TargetColumn,
		HistoryWindow:    req.HistoryWindow,
		ForecastHorizon:  req.ForecastHorizon,
		BackendURL:       req.BackendURL,
		Backend:          req.Backend,
		AdditionalParams: req.AdditionalParams,
	}

	if err := s.registry.Register(c.Context(), req.ModelName, cfg); err != nil {
		return err
	}

	stored, err := s.registry.Get(c.Context(), req.ModelName)
	if err != nil {
		return err
	}

	s.log.WithField("model", stored.ModelName).Info("Registered model")

	return c.Status(fiber.StatusCreated).JSON(stored)
}

// ListModels handles GET /api/v1/models
func (s *Server) ListModels(c fiber.Ctx) error {
	names, err := s.registry.List(c.Context())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"models": names,
		"total":  len(names),
	})
}

// GetModel handles GET /api/v1/models/:name
func (s *Server) GetModel(c fiber.Ctx) error {
	cfg, err := s.registry.Get(c.Context(), c.Params("name"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(cfg)
}
