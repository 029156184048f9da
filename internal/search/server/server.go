// Package server assembles the search processes: the query API and the
// indexer.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskflow-hq/taskflow/internal/platform/cache"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/messaging/kafka"
	"github.com/taskflow-hq/taskflow/internal/platform/middleware"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/http/handlers"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/repository/elasticsearch"
	"github.com/taskflow-hq/taskflow/internal/search/app/service"
)

const maxRequestBytes = 1 << 20

// Server represents the search query API server
type Server struct {
	base
	httpServer *http.Server
	query      *service.QueryService
	emitter    *service.ChangeEmitter
	closers    []io.Closer
}

// New creates a new server instance
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	if err := s.apply(opts); err != nil {
		return nil, fmt.Errorf("failed to configure server: %w", err)
	}

	if err := s.initialize(); err != nil {
		s.closeAll()
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return s, nil
}

func (s *Server) initialize() error {
	cfg := s.config
	if err := cfg.Auth.Validate(); err != nil {
		return err
	}

	// Search engine
	engine := s.engine
	if engine == nil {
		client, err := elasticsearch.NewClient(cfg.Elasticsearch)
		if err != nil {
			return err
		}
		repo := elasticsearch.NewSearchRepository(client, cfg.Elasticsearch, s.logger)
		s.health.AddCheck("elasticsearch", repo.Ping)
		engine = repo
	}

	// History store
	store := s.store
	if store == nil {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, redisCache)
		s.health.AddNonCritical("redis", redisCache.Health)
		store = redisCache
	}

	// Reindex requests
	sink := s.sink
	if sink == nil {
		publisher, err := kafka.NewEventPublisher(kafka.ConfigFrom(cfg.Kafka), s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, publisher)
		sink = publisher
	}

	s.query = service.NewQueryService(engine, service.QueryOptionsFrom(cfg.Search), s.metrics, s.telemetry.Tracer(), s.logger)
	history := service.NewHistoryService(store, service.HistoryOptionsFrom(cfg.Search), s.metrics, s.logger)
	suggestions := service.NewSuggestionService(history, s.logger)
	s.emitter = service.NewChangeEmitter(sink, s.metrics, s.logger)

	s.health.AddNonCritical("circuit_breakers", s.checkBreakers)

	s.setupHTTPServer(history, suggestions)
	return nil
}

func (s *Server) setupHTTPServer(history *service.HistoryService, suggestions *service.SuggestionService) {
	router := mux.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(logger.HTTPMiddleware(s.logger))
	router.Use(s.metrics.HTTPMetricsMiddleware())
	router.Use(s.recoveryMiddleware)

	s.probes(router)

	auth := middleware.NewAuthMiddleware([]byte(s.config.Auth.JWTSecret))
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.RequestSizeLimit(maxRequestBytes))
	apiRouter.Use(auth.Middleware)

	searchHandler := handlers.NewSearchHandler(s.query, history, suggestions, s.emitter, auth.RequireRole("admin"), s.logger)
	searchHandler.RegisterRoutes(apiRouter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	return s.httpServer.ListenAndServe()
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.emitter.Close()
	s.closeAll()
	return nil
}

func (s *Server) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Error("Close error", "error", err)
		}
	}
	s.closers = nil
}

func (s *Server) checkBreakers(ctx context.Context) error {
	for name, stats := range s.query.Breakers().Stats() {
		if stats.State == "open" {
			return fmt.Errorf("circuit breaker %s is open", name)
		}
	}
	return nil
}
