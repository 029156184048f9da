package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/taskflow-hq/taskflow/internal/platform/cache"
	"github.com/taskflow-hq/taskflow/internal/platform/database"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/messaging/kafka"
	"github.com/taskflow-hq/taskflow/internal/platform/middleware"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/repository/elasticsearch"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/repository/postgres"
	"github.com/taskflow-hq/taskflow/internal/search/app/service"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

const ensureIndicesTimeout = 30 * time.Second

// Indexer consumes index events and keeps the search indices in sync with
// the system of record. It serves only probes and metrics over HTTP.
type Indexer struct {
	base
	httpServer *http.Server
	consumers  []*kafka.EventConsumer
	emitter    *service.ChangeEmitter
	scheduler  *service.ReindexScheduler
	closers    []io.Closer
	cancel     context.CancelFunc
}

// NewIndexer creates a new indexer instance
func NewIndexer(opts ...Option) (*Indexer, error) {
	ix := &Indexer{}
	if err := ix.apply(opts); err != nil {
		return nil, fmt.Errorf("failed to configure indexer: %w", err)
	}

	if err := ix.initialize(); err != nil {
		ix.closeAll()
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	return ix, nil
}

func (ix *Indexer) initialize() error {
	cfg := ix.config

	// System of record
	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	ix.closers = append(ix.closers, db)
	ix.health.AddCheck("database", db.HealthCheck)
	sources := service.Sources{
		Tasks:    postgres.NewTaskSource(db),
		Projects: postgres.NewProjectSource(db),
		Users:    postgres.NewUserSource(db),
		Teams:    postgres.NewTeamSource(db),
	}

	// Search engine
	engine := ix.engine
	if engine == nil {
		client, err := elasticsearch.NewClient(cfg.Elasticsearch)
		if err != nil {
			return err
		}
		repo := elasticsearch.NewSearchRepository(client, cfg.Elasticsearch, ix.logger)
		ctx, cancel := context.WithTimeout(context.Background(), ensureIndicesTimeout)
		err = repo.EnsureIndices(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to ensure indices: %w", err)
		}
		ix.health.AddCheck("elasticsearch", repo.Ping)
		engine = repo
	}

	// Dead letters and scheduled reindex requests
	kcfg := kafka.ConfigFrom(cfg.Kafka)
	sink := ix.sink
	if sink == nil {
		publisher, err := kafka.NewEventPublisher(kcfg, ix.logger)
		if err != nil {
			return err
		}
		ix.closers = append(ix.closers, publisher)
		sink = publisher
	}

	indexer := service.NewIndexingService(engine, ix.metrics, ix.logger)
	handler := service.NewEventConsumer(indexer, sources, sink, cfg.Consumer, ix.metrics, ix.telemetry.Tracer(), ix.logger)

	consume := func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		return handler.HandlePayload(ctx, msg.Value)
	}
	// One group per entity type plus one for bulk requests.
	for _, t := range model.AllEntityTypes() {
		group := cfg.Kafka.ConsumerGroup + "." + t.Label()
		if err := ix.addConsumer(kcfg, group, []string{kcfg.EntityTopic(string(t))}, consume); err != nil {
			return err
		}
	}
	if kcfg.BulkTopic != "" {
		if err := ix.addConsumer(kcfg, cfg.Kafka.ConsumerGroup+".bulk", []string{kcfg.BulkTopic}, consume); err != nil {
			return err
		}
	}

	ix.emitter = service.NewChangeEmitter(sink, ix.metrics, ix.logger)

	if cfg.Search.ReindexEnabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			return err
		}
		ix.closers = append(ix.closers, redisCache)
		ix.health.AddNonCritical("redis", redisCache.Health)

		newLock := func(key string, ttl time.Duration) service.DistributedLock {
			return redisCache.NewLock(key, ttl)
		}
		ix.scheduler = service.NewReindexScheduler(ix.emitter, newLock, cfg.Search.ReindexSchedule, ix.logger)
	}

	ix.setupHTTPServer()
	return nil
}

func (ix *Indexer) addConsumer(kcfg *kafka.Config, group string, topics []string, handler kafka.MessageHandler) error {
	consumer, err := kafka.NewEventConsumer(kcfg, group, topics, handler, ix.logger)
	if err != nil {
		return err
	}
	ix.consumers = append(ix.consumers, consumer)
	ix.closers = append(ix.closers, consumer)
	return nil
}

func (ix *Indexer) setupHTTPServer() {
	router := mux.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(logger.HTTPMiddleware(ix.logger))
	router.Use(ix.metrics.HTTPMetricsMiddleware())
	router.Use(ix.recoveryMiddleware)

	ix.probes(router)

	ix.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", ix.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  ix.config.HTTP.ReadTimeout,
		WriteTimeout: ix.config.HTTP.WriteTimeout,
		IdleTimeout:  ix.config.HTTP.IdleTimeout,
	}
}

// Start runs the consumers, the scheduler and the probe server until
// Shutdown is called or one of them fails.
func (ix *Indexer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	ix.cancel = cancel

	if ix.scheduler != nil {
		if err := ix.scheduler.Start(); err != nil {
			cancel()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range ix.consumers {
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}
	g.Go(func() error {
		ix.logger.Info("Starting HTTP server", "port", ix.config.HTTP.Port)
		if err := ix.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// Handler returns the HTTP handler for the indexer
func (ix *Indexer) Handler() http.Handler {
	return ix.httpServer.Handler
}

// Shutdown stops consuming and releases every connection.
func (ix *Indexer) Shutdown(ctx context.Context) error {
	ix.logger.Info("Shutting down indexer")

	if ix.scheduler != nil {
		ix.scheduler.Stop()
	}
	if ix.cancel != nil {
		ix.cancel()
	}
	if err := ix.httpServer.Shutdown(ctx); err != nil {
		ix.logger.Error("HTTP server shutdown error", "error", err)
	}
	ix.emitter.Close()
	ix.closeAll()
	return nil
}

func (ix *Indexer) closeAll() {
	for i := len(ix.closers) - 1; i >= 0; i-- {
		if err := ix.closers[i].Close(); err != nil {
			ix.logger.Error("Close error", "error", err)
		}
	}
	ix.closers = nil
}
