package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"time"

	"github.com/ethpandaops/tsforecast/pkg/api"
	"github.com/ethpandaops/tsforecast/pkg/backend"
	"github.com/ethpandaops/tsforecast/pkg/cache"
	"github.com/ethpandaops/tsforecast/pkg/clickhouse"
	"github.com/ethpandaops/tsforecast/pkg/forecast"
	"github.com/ethpandaops/tsforecast/pkg/migrations"
	"github.com/ethpandaops/tsforecast/pkg/observability"
	r "github.com/ethpandaops/tsforecast/pkg/redis"
	"github.com/ethpandaops/tsforecast/pkg/registry"
	"github.com/ethpandaops/tsforecast/pkg/store"
	"github.com/ethpandaops/tsforecast/pkg/tasks"
	"github.com/ethpandaops/tsforecast/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service owns every long running component of the forecasting service
type Service struct {
	config *Config
	log    *logrus.Logger

	chClient  clickhouse.ClientInterface
	tables    clickhouse.Tables
	registry  registry.Registry
	store     store.Store
	forecasts forecast.Service
	queue     *tasks.QueueManager
	worker    worker.Service
	api       api.Service

	// Servers
	healthServer *http.Server
	pprofServer  *http.Server

	redisOptions *redis.Options
	redisClient  *redis.Client
}

// NewService builds the engine from configuration. Nothing is started.
func NewService(log *logrus.Logger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	chClient, err := clickhouse.NewClient(log, &cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("failed to setup ClickHouse client: %w", err)
	}

	tables := clickhouse.TablesFor(&cfg.ClickHouse)
	s := &Service{
		log:      log,
		config:   cfg,
		chClient: chClient,
		tables:   tables,
		store:    store.NewClickHouse(log, chClient, tables),
	}

	switch cfg.Registry.Mode {
	case registry.ModeMemory:
		s.registry = registry.NewMemory(log)
	default:
		s.registry = registry.NewDurable(log, chClient, tables.ModelConfigs)
	}

	if cfg.needsRedis() {
		s.redisClient, s.redisOptions, err = r.NewClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}
	}

	// A typed nil would pass NewPersister's nil check
	var enqueuer forecast.Enqueuer

	if cfg.Persistence.Mode == forecast.PersisterQueue {
		s.queue = tasks.NewQueueManager(r.NewAsynqRedisOptions(s.redisOptions), cfg.Worker.Queue)
		enqueuer = s.queue

		if cfg.Persistence.RunWorker {
			s.worker, err = worker.NewService(log, &cfg.Worker, s.store, s.redisOptions)
			if err != nil {
				return nil, fmt.Errorf("failed to create worker service: %w", err)
			}
		}
	}

	persister, err := forecast.NewPersister(log, cfg.Persistence.Mode, s.store, enqueuer, cfg.Persistence.Timeout)
	if err != nil {
		return nil, err
	}

	opts := []forecast.Option{}
	if cfg.Cache.Enabled {
		opts = append(opts, forecast.WithCache(cache.New(s.redisClient, cfg.Redis.Prefix)))
	}

	s.forecasts = forecast.NewService(log, s.store, backend.NewFactory(log, cfg.Backend.Timeout), persister, opts...)
	s.api = api.NewService(&cfg.API, s.registry, s.forecasts, log)

	return s, nil
}

// Registry exposes the model registry, e.g. for seeding models at startup
func (s *Service) Registry() registry.Registry {
	return s.registry
}

// Forecasts exposes the forecast service
func (s *Service) Forecasts() forecast.Service {
	return s.forecasts
}

// Start provisions the schema and starts every component
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting tsforecast engine...")

	observability.StartMetricsServer(s.log, s.config.MetricsAddr)

	if s.config.HealthCheckAddr != "" {
		s.startHealthCheck()
	}

	if s.config.PProfAddr != "" {
		s.startPProf()
	}

	if err := s.chClient.Start(); err != nil {
		return fmt.Errorf("failed to start ClickHouse client: %w", err)
	}

	if err := migrations.Provision(ctx, s.log, s.chClient, s.tables, s.config.CleanStart); err != nil {
		return err
	}

	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}
	}

	if s.worker != nil {
		if err := s.worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}

	if err := s.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API service: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"registry":    s.config.Registry.Mode,
		"persistence": s.config.Persistence.Mode,
		"cache":       s.config.Cache.Enabled,
	}).Info("tsforecast engine started successfully")

	return nil
}

// Stop gracefully shuts down the engine
func (s *Service) Stop() error {
	s.log.Info("Shutting down engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if err := stopFunc(); err != nil {
			s.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// 1. Stop taking requests
	if s.api != nil {
		stopService("API service", s.api.Stop)
	}

	// 2. Stop enqueueing, then drain in-flight tasks
	if s.queue != nil {
		stopService("persistence queue", s.queue.Close)
	}

	if s.worker != nil {
		stopService("worker service", s.worker.Stop)
	}

	// 3. Close Redis, nothing is using it now
	if s.redisClient != nil {
		stopService("Redis client", s.redisClient.Close)
	}

	if err := s.chClient.Stop(); err != nil {
		s.log.WithError(err).Error("Failed to stop ClickHouse client")
		return err
	}

	if s.healthServer != nil {
		stopService("health check server", func() error { return s.healthServer.Shutdown(ctx) })
	}

	if s.pprofServer != nil {
		stopService("pprof server", func() error { return s.pprofServer.Shutdown(ctx) })
	}

	stopService("metrics server", func() error { return observability.StopMetricsServer(ctx) })

	return nil
}

func (s *Service) startHealthCheck() {
	s.log.WithField("addr", s.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := clickhouse.Health(req.Context(), s.chClient); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.healthServer = &http.Server{
		Addr:              s.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (s *Service) startPProf() {
	s.log.WithField("addr", s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              s.config.PProfAddr,
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("pprof server failed")
		}
	}()
}
