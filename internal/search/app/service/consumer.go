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
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

const deadLetterTimeout = 5 * time.Second

// Sources bundles the system-of-record readers, one per entity type.
type Sources struct {
	Tasks    repository.TaskSource
	Projects repository.ProjectSource
	Users    repository.UserSource
	Teams    repository.TeamSource
}

// EventConsumer turns index events into index writes. Processing is
// idempotent: replaying an event leaves the index in the same state.
type EventConsumer struct {
	indexer    *IndexingService
	sources    Sources
	deadLetter repository.DeadLetterSink
	retry      *resilience.RetryConfig
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     logger.Logger
}

// NewEventConsumer creates a consumer. deadLetter may be nil, in which case
// events that exhaust their attempts are dropped after logging.
func NewEventConsumer(
	indexer *IndexingService,
	sources Sources,
	deadLetter repository.DeadLetterSink,
	cfg config.ConsumerConfig,
	metrics *metrics.Metrics,
	tracer trace.Tracer,
	logger logger.Logger,
) *EventConsumer {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if !cfg.DeadLetterEnabled {
		deadLetter = nil
	}
	c := &EventConsumer{
		indexer:    indexer,
		sources:    sources,
		deadLetter: deadLetter,
		metrics:    metrics,
		tracer:     tracer,
		logger:     logger,
	}
	c.retry = &resilience.RetryConfig{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialBackoff,
		MaxDelay:      cfg.MaxBackoff,
		BackoffFactor: 2,
		JitterFactor:  0.1,
		Retryable:     func(err error) bool { return !isPermanent(err) },
	}
	return c
}

// HandlePayload decodes a broker message and handles it. Undecodable
// payloads are logged and dropped.
func (c *EventConsumer) HandlePayload(ctx context.Context, payload []byte) error {
	event, err := events.Decode(payload)
	if err != nil {
		c.metrics.EventsProcessed.WithLabelValues("unknown", "unknown", metrics.OutcomeDropped).Inc()
		c.logger.Error("Dropping undecodable index event", "error", err, "payload_bytes", len(payload))
		return err
	}
	return c.Handle(ctx, event)
}

// Handle processes one event. Transient failures are retried with backoff;
// an event that still fails goes to the dead-letter sink, or is dropped.
// The returned error is informational: the caller should move on either
// way so one bad event cannot stall its partition.
func (c *EventConsumer) Handle(ctx context.Context, event *events.IndexEvent) error {
	ctx, span := c.tracer.Start(ctx, "search.index_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.type", string(event.EventType)),
			attribute.String("entity.type", event.EntityType),
			attribute.String("entity.id", event.EntityID),
		),
	)
	defer span.End()

	entityType, err := model.ParseEntityType(event.EntityType)
	if err == nil {
		err = event.Validate()
	} else {
		err = fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	label := string(event.EntityType)
	if entityType != "" {
		label = entityType.Label()
	}
	log := c.logger.WithFields(map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.EventType,
		"entity_type": label,
		"entity_id":   event.EntityID,
	})

	var outcome string
	if err == nil {
		retry := *c.retry
		retry.OnRetry = func(attempt int, err error) {
			c.metrics.EventRetries.WithLabelValues(label).Inc()
			log.Warn("Retrying index event", "attempt", attempt, "error", err)
		}
		err = resilience.Retry(ctx, &retry, func(ctx context.Context, attempt int) error {
			var procErr error
			outcome, procErr = c.process(ctx, entityType, event, log)
			return procErr
		})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome = c.fail(ctx, event, err, log)
	}
	c.metrics.EventsProcessed.WithLabelValues(label, string(event.EventType), outcome).Inc()
	return err
}

// Reindex loads every entity of entityType and bulk indexes it.
func (c *EventConsumer) Reindex(ctx context.Context, entityType model.EntityType) (*BulkReport, error) {
	switch entityType {
	case model.EntityTask:
		return reindexAll(ctx, c.sources.Tasks, c.indexer.BulkIndexTasks)
	case model.EntityProject:
		return reindexAll(ctx, c.sources.Projects, c.indexer.BulkIndexProjects)
	case model.EntityUser:
		return reindexAll(ctx, c.sources.Users, c.indexer.BulkIndexUsers)
	case model.EntityTeam:
		return reindexAll(ctx, c.sources.Teams, c.indexer.BulkIndexTeams)
	}
	return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidEvent, entityType)
}

func (c *EventConsumer) process(ctx context.Context, entityType model.EntityType, event *events.IndexEvent, log logger.Logger) (string, error) {
	switch event.EventType {
	case events.EventBulkReindex:
		report, err := c.Reindex(ctx, entityType)
		if err != nil {
			return "", err
		}
		log.Info("Bulk reindex processed", "indexed", report.Indexed, "failed", len(report.Failed))
		return metrics.OutcomeIndexed, nil

	case events.EventDelete:
		if err := c.indexer.Delete(ctx, entityType, event.EntityID); err != nil {
			return "", err
		}
		return metrics.OutcomeDeleted, nil

	default:
		err := c.indexOne(ctx, entityType, event.EntityID)
		if errors.Is(err, repository.ErrEntityNotFound) {
			// Deleted between emission and consumption. Removing the
			// document keeps a stale copy from outliving the entity.
			log.Info("Entity no longer exists, removing document")
			if err := c.indexer.Delete(ctx, entityType, event.EntityID); err != nil {
				return "", err
			}
			return metrics.OutcomeDeleted, nil
		}
		if err != nil {
			return "", err
		}
		return metrics.OutcomeIndexed, nil
	}
}

func (c *EventConsumer) indexOne(ctx context.Context, entityType model.EntityType, id string) error {
	switch entityType {
	case model.EntityTask:
		return loadAndIndex(ctx, c.sources.Tasks, id, c.indexer.IndexTask)
	case model.EntityProject:
		return loadAndIndex(ctx, c.sources.Projects, id, c.indexer.IndexProject)
	case model.EntityUser:
		return loadAndIndex(ctx, c.sources.Users, id, c.indexer.IndexUser)
	case model.EntityTeam:
		return loadAndIndex(ctx, c.sources.Teams, id, c.indexer.IndexTeam)
	}
	return fmt.Errorf("%w: unknown entity type %q", ErrInvalidEvent, entityType)
}

func (c *EventConsumer) fail(ctx context.Context, event *events.IndexEvent, cause error, log logger.Logger) string {
	if c.deadLetter == nil {
		log.Error("Dropping index event", "error", cause)
		return metrics.OutcomeDropped
	}

	// Still dead-letter during shutdown, within a bounded time.
	dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
	defer cancel()
	if err := c.deadLetter.PublishDeadLetter(dlqCtx, event, cause); err != nil {
		log.Error("Failed to dead-letter index event, dropping", "error", cause, "dead_letter_error", err)
		return metrics.OutcomeDropped
	}
	log.Error("Index event dead-lettered", "error", cause)
	return metrics.OutcomeDeadLettered
}

func loadAndIndex[T any](ctx context.Context, src repository.Source[T], id string, index func(context.Context, T) error) error {
	if src == nil {
		return fmt.Errorf("%w: no source configured", ErrInvalidEvent)
	}
	entity, err := src.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load entity %s: %w", id, err)
	}
	return index(ctx, entity)
}

func reindexAll[T any](ctx context.Context, src repository.Source[T], bulk func(context.Context, []T) (*BulkReport, error)) (*BulkReport, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrInvalidEvent)
	}
	entities, err := src.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	return bulk(ctx, entities)
}
