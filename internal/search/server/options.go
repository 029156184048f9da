package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/health"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/platform/response"
	"github.com/taskflow-hq/taskflow/internal/platform/telemetry"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

const metricsNamespace = "taskflow_search"

// base holds what every search process needs regardless of its role.
type base struct {
	config    *config.Config
	logger    logger.Logger
	telemetry *telemetry.Telemetry
	metrics   *metrics.Metrics
	health    *health.Handler

	// Injected backends replace the configured ones.
	engine repository.SearchEngine
	store  repository.SortedSetStore
	sink   EventSink
}

// EventSink publishes index events and dead letters.
type EventSink interface {
	repository.EventSink
	repository.DeadLetterSink
}

// Option is a server configuration option
type Option func(*base)

// WithConfig sets the server config
func WithConfig(cfg *config.Config) Option {
	return func(b *base) {
		b.config = cfg
	}
}

// WithLogger sets the server logger
func WithLogger(logger logger.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// WithTelemetry sets the server telemetry
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(b *base) {
		b.telemetry = tel
	}
}

// WithSearchEngine uses engine instead of connecting to Elasticsearch.
func WithSearchEngine(engine repository.SearchEngine) Option {
	return func(b *base) {
		b.engine = engine
	}
}

// WithStore uses store instead of connecting to Redis.
func WithStore(store repository.SortedSetStore) Option {
	return func(b *base) {
		b.store = store
	}
}

// WithEventSink uses sink instead of connecting to Kafka.
func WithEventSink(sink EventSink) Option {
	return func(b *base) {
		b.sink = sink
	}
}

func (b *base) apply(opts []Option) error {
	for _, opt := range opts {
		opt(b)
	}
	if b.config == nil {
		return fmt.Errorf("config is required")
	}
	if b.logger == nil {
		b.logger = logger.NewNop()
	}
	if b.telemetry == nil {
		tel, err := telemetry.New(config.TelemetryConfig{ServiceName: b.config.Service.Name})
		if err != nil {
			return err
		}
		b.telemetry = tel
	}
	b.metrics = metrics.NewMetrics(metricsNamespace, b.telemetry.Registry())
	b.health = health.NewHandler(b.config.Service.Name, b.config.Version)
	return nil
}

// probes mounts the health and metrics endpoints, which skip auth.
func (b *base) probes(router *mux.Router) {
	router.Handle("/health", b.health.HealthHandler()).Methods("GET")
	router.Handle("/health/live", b.health.LivenessHandler()).Methods("GET")
	router.Handle("/ready", b.health.ReadinessHandler()).Methods("GET")
	router.Handle("/metrics", b.telemetry.MetricsHandler()).Methods("GET")
}

func (b *base) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				b.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				response.Error(w, response.ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
