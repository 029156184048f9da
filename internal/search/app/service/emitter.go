package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

const publishTimeout = 10 * time.Second

// ChangeEmitter is called by the entity write paths after a mutation. Emit
// never blocks the caller and never reports failure to it: the write has
// already happened, and a lost event is repaired by the next bulk reindex.
type ChangeEmitter struct {
	sink    repository.EventSink
	metrics *metrics.Metrics
	logger  logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewChangeEmitter(sink repository.EventSink, metrics *metrics.Metrics, logger logger.Logger) *ChangeEmitter {
	return &ChangeEmitter{
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
}

// Emit publishes a CREATE, UPDATE or DELETE event in the background.
func (e *ChangeEmitter) Emit(entityType model.EntityType, eventType events.EventType, entityID int64, triggeredBy *int64) {
	event, err := events.NewIndexEvent(eventType, string(entityType), events.FormatID(entityID), triggeredBy)
	if err != nil {
		e.logger.Error("Dropping invalid index event",
			"entity_type", entityType.Label(),
			"entity_id", entityID,
			"event_type", eventType,
			"error", err,
		)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.logger.Warn("Emitter closed, dropping index event", "event_id", event.ID, "entity_id", event.EntityID)
		return
	}
	e.wg.Add(1)
	go e.publish(event)
}

// PublishBulkReindex emits a BULK_REINDEX event synchronously so the
// caller can report whether the request was accepted.
func (e *ChangeEmitter) PublishBulkReindex(ctx context.Context, entityType model.EntityType) (*events.IndexEvent, error) {
	event, err := events.NewBulkReindexEvent(string(entityType))
	if err != nil {
		return nil, err
	}
	if err := e.sink.Publish(ctx, event); err != nil {
		e.metrics.EventPublishFailures.WithLabelValues(entityType.Label()).Inc()
		return nil, fmt.Errorf("failed to publish bulk reindex for %s: %w", entityType.Label(), err)
	}
	e.metrics.EventsPublished.WithLabelValues(entityType.Label(), string(event.EventType)).Inc()

	e.logger.Info("Bulk reindex requested", "entity_type", entityType.Label(), "event_id", event.ID)
	return event, nil
}

// Close waits for in-flight events. Emit calls after Close are dropped.
func (e *ChangeEmitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *ChangeEmitter) publish(event *events.IndexEvent) {
	defer e.wg.Done()

	entityType := model.EntityType(event.EntityType).Label()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.EventPublishFailures.WithLabelValues(entityType).Inc()
			e.logger.Error("Panic while publishing index event",
				"event_id", event.ID,
				"entity_id", event.EntityID,
				"panic", r,
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := e.sink.Publish(ctx, event); err != nil {
		e.metrics.EventPublishFailures.WithLabelValues(entityType).Inc()
		e.logger.Error("Failed to publish index event",
			"event_id", event.ID,
			"entity_type", entityType,
			"entity_id", event.EntityID,
			"event_type", event.EventType,
			"error", err,
		)
		return
	}
	e.metrics.EventsPublished.WithLabelValues(entityType, string(event.EventType)).Inc()
}
