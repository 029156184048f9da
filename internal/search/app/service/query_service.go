package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/platform/resilience"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

// QueryOptions holds page sizes and the per-call engine timeout.
type QueryOptions struct {
	DefaultPageSize  int
	MaxPageSize      int
	AutocompleteSize int
	QuickSearchSize  int
	Timeout          time.Duration
}

// QueryOptionsFrom reads the query settings from the search config.
func QueryOptionsFrom(cfg config.SearchConfig) QueryOptions {
	return QueryOptions{
		DefaultPageSize:  cfg.DefaultPageSize,
		MaxPageSize:      cfg.MaxPageSize,
		AutocompleteSize: cfg.AutocompleteSize,
		QuickSearchSize:  cfg.QuickSearchSize,
		Timeout:          cfg.QueryTimeout,
	}
}

// QueryService answers searches on behalf of a requesting user. It never
// writes anything and holds no per-request state, so it is safe for
// concurrent use.
type QueryService struct {
	engine   repository.SearchEngine
	breakers *resilience.CircuitBreakerRegistry
	opts     QueryOptions
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   logger.Logger
}

func NewQueryService(
	engine repository.SearchEngine,
	opts QueryOptions,
	metrics *metrics.Metrics,
	tracer trace.Tracer,
	logger logger.Logger,
) *QueryService {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	if opts.AutocompleteSize <= 0 {
		opts.AutocompleteSize = 10
	}
	if opts.QuickSearchSize <= 0 {
		opts.QuickSearchSize = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	breakerConfig := resilience.DefaultCircuitBreakerConfig("search")
	breakerConfig.IsFailure = countsAgainstEngine
	breakerConfig.OnStateChange = func(name string, from, to resilience.State) {
		metrics.CircuitBreakState.WithLabelValues(name).Set(float64(to))
		logger.Warn("Search circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}

	return &QueryService{
		engine:   engine,
		breakers: resilience.NewCircuitBreakerRegistry(breakerConfig),
		opts:     opts,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
	}
}

// Breakers exposes the per-entity-type circuit breakers for health output.
func (s *QueryService) Breakers() *resilience.CircuitBreakerRegistry {
	return s.breakers
}

func (s *QueryService) SearchTasks(ctx context.Context, term string, userID int64, page model.PageRequest) (model.Page[model.TaskDocument], error) {
	page = s.normalize(page, s.opts.DefaultPageSize)
	return runSearch(ctx, s, taskTarget, BuildQuery(model.EntityTask, term, userID), page)
}

func (s *QueryService) SearchProjects(ctx context.Context, term string, userID int64, page model.PageRequest) (model.Page[model.ProjectDocument], error) {
	page = s.normalize(page, s.opts.DefaultPageSize)
	return runSearch(ctx, s, projectTarget, BuildQuery(model.EntityProject, term, userID), page)
}

func (s *QueryService) SearchUsers(ctx context.Context, term string, userID int64, page model.PageRequest) (model.Page[model.UserDocument], error) {
	page = s.normalize(page, s.opts.DefaultPageSize)
	return runSearch(ctx, s, userTarget, BuildQuery(model.EntityUser, term, userID), page)
}

func (s *QueryService) SearchTeams(ctx context.Context, term string, userID int64, page model.PageRequest) (model.Page[model.TeamDocument], error) {
	page = s.normalize(page, s.opts.DefaultPageSize)
	return runSearch(ctx, s, teamTarget, BuildQuery(model.EntityTeam, term, userID), page)
}

func (s *QueryService) normalize(page model.PageRequest, defaultSize int) model.PageRequest {
	return page.Normalize(defaultSize, s.opts.MaxPageSize)
}

// CheckPage returns ErrPageOutOfRange when page, once normalized with the
// configured sizes, reaches past the result window.
func (s *QueryService) CheckPage(page model.PageRequest) error {
	if !s.normalize(page, s.opts.DefaultPageSize).InWindow() {
		return ErrPageOutOfRange
	}
	return nil
}

// searchTarget ties an entity type to its document decoder and rank key.
type searchTarget[T any] struct {
	entityType model.EntityType
	decode     func(model.RawHit) (T, bool)
	rankKey    func(T) RankKey
}

var (
	taskTarget    = searchTarget[model.TaskDocument]{model.EntityTask, decodeTask, taskRankKey}
	projectTarget = searchTarget[model.ProjectDocument]{model.EntityProject, decodeProject, projectRankKey}
	userTarget    = searchTarget[model.UserDocument]{model.EntityUser, decodeUser, userRankKey}
	teamTarget    = searchTarget[model.TeamDocument]{model.EntityTeam, decodeTeam, teamRankKey}
)

// runSearch executes one engine call under the entity type's timeout and
// circuit breaker. Any failure is reported as ErrSearchUnavailable.
func runSearch[T any](
	ctx context.Context,
	s *QueryService,
	target searchTarget[T],
	clause query.Clause,
	page model.PageRequest,
) (model.Page[T], error) {
	label := target.entityType.Label()
	if !page.InWindow() {
		return model.EmptyPage[T](page), fmt.Errorf("%w: %s page %d size %d", ErrPageOutOfRange, label, page.Page, page.Size)
	}
	order := effectiveOrder(target.entityType, page.Sort)

	ctx, span := s.tracer.Start(ctx, "search."+label,
		trace.WithAttributes(
			attribute.String("entity.type", label),
			attribute.Int("page.number", page.Page),
			attribute.Int("page.size", page.Size),
			attribute.String("page.sort", string(order)),
		),
	)
	defer span.End()

	req := query.SearchRequest{
		Query: clause,
		From:  page.Offset(),
		Size:  page.Size,
		Sort:  engineSort(order),
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	var hits *model.RawHits
	err := s.breakers.Get("search."+label).Execute(callCtx, func(ctx context.Context) error {
		var err error
		hits, err = s.engine.Search(ctx, target.entityType, req)
		return err
	})
	s.metrics.SearchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.SearchQueries.WithLabelValues(label, metrics.OutcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.EmptyPage[T](page), fmt.Errorf("%w: %s search: %w", ErrSearchUnavailable, label, err)
	}
	if hits == nil {
		hits = &model.RawHits{}
	}

	docs, dropped := decodeHits(hits.Hits, target.decode)
	if dropped > 0 {
		s.logger.Warn("Skipped undecodable search hits", "entity_type", label, "dropped", dropped)
	}
	Rank(docs, order, target.rankKey)

	s.metrics.SearchQueries.WithLabelValues(label, metrics.OutcomeSuccess).Inc()
	span.SetAttributes(attribute.Int64("hits.total", hits.Total))
	return model.NewPage(docs, hits.Total, page), nil
}

// countsAgainstEngine keeps caller cancellation and our own malformed
// queries from opening a breaker.
func countsAgainstEngine(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, query.ErrInvalidQuery) &&
		!errors.Is(err, repository.ErrDocumentRejected)
}
