package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

// BulkReport summarizes a bulk index run. Failed maps document ids to the
// reason they were skipped; one failure never aborts the batch.
type BulkReport struct {
	EntityType model.EntityType  `json:"entityType"`
	Total      int               `json:"total"`
	Indexed    int               `json:"indexed"`
	Failed     map[string]string `json:"failed,omitempty"`
	Duration   time.Duration     `json:"-"`
}

// IndexingService maps entities to documents and writes them to the
// search engine. Every write is keyed by entity id, so it is safe to
// repeat.
type IndexingService struct {
	engine  repository.SearchEngine
	metrics *metrics.Metrics
	logger  logger.Logger
}

func NewIndexingService(
	engine repository.SearchEngine,
	metrics *metrics.Metrics,
	logger logger.Logger,
) *IndexingService {
	return &IndexingService{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *IndexingService) IndexTask(ctx context.Context, t *model.Task) error {
	doc, err := MapTask(t)
	if err != nil {
		return err
	}
	return s.upsert(ctx, model.EntityTask, doc.ID, doc)
}

func (s *IndexingService) IndexProject(ctx context.Context, p *model.Project) error {
	doc, err := MapProject(p)
	if err != nil {
		return err
	}
	return s.upsert(ctx, model.EntityProject, doc.ID, doc)
}

func (s *IndexingService) IndexUser(ctx context.Context, u *model.User) error {
	doc, err := MapUser(u)
	if err != nil {
		return err
	}
	return s.upsert(ctx, model.EntityUser, doc.ID, doc)
}

func (s *IndexingService) IndexTeam(ctx context.Context, t *model.Team) error {
	doc, err := MapTeam(t)
	if err != nil {
		return err
	}
	return s.upsert(ctx, model.EntityTeam, doc.ID, doc)
}

// Delete removes a document. A document that is already gone is not an
// error.
func (s *IndexingService) Delete(ctx context.Context, entityType model.EntityType, id string) error {
	err := s.engine.Delete(ctx, entityType, id)
	if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete %s document %s: %w", entityType.Label(), id, err)
	}

	s.logger.Debug("Document deleted", "entity_type", entityType.Label(), "entity_id", id)
	return nil
}

func (s *IndexingService) BulkIndexTasks(ctx context.Context, tasks []*model.Task) (*BulkReport, error) {
	return bulkIndex(ctx, s, model.EntityTask, tasks, func(t *model.Task) (string, any, error) {
		doc, err := MapTask(t)
		if err != nil {
			return taskKey(t), nil, err
		}
		return doc.ID, doc, nil
	})
}

func (s *IndexingService) BulkIndexProjects(ctx context.Context, projects []*model.Project) (*BulkReport, error) {
	return bulkIndex(ctx, s, model.EntityProject, projects, func(p *model.Project) (string, any, error) {
		doc, err := MapProject(p)
		if err != nil {
			return projectKey(p), nil, err
		}
		return doc.ID, doc, nil
	})
}

func (s *IndexingService) BulkIndexUsers(ctx context.Context, users []*model.User) (*BulkReport, error) {
	return bulkIndex(ctx, s, model.EntityUser, users, func(u *model.User) (string, any, error) {
		doc, err := MapUser(u)
		if err != nil {
			return userKey(u), nil, err
		}
		return doc.ID, doc, nil
	})
}

func (s *IndexingService) BulkIndexTeams(ctx context.Context, teams []*model.Team) (*BulkReport, error) {
	return bulkIndex(ctx, s, model.EntityTeam, teams, func(t *model.Team) (string, any, error) {
		doc, err := MapTeam(t)
		if err != nil {
			return teamKey(t), nil, err
		}
		return doc.ID, doc, nil
	})
}

func (s *IndexingService) upsert(ctx context.Context, entityType model.EntityType, id string, doc any) error {
	start := time.Now()
	if err := s.engine.Upsert(ctx, entityType, id, doc); err != nil {
		return fmt.Errorf("failed to index %s document %s: %w", entityType.Label(), id, err)
	}
	s.metrics.IndexDuration.WithLabelValues(entityType.Label()).Observe(time.Since(start).Seconds())

	s.logger.Debug("Document indexed", "entity_type", entityType.Label(), "entity_id", id)
	return nil
}

// bulkIndex maps every item, skipping the ones that fail, and sends the
// rest in a single bulk call. Only a failure of the bulk call itself is
// returned as an error.
func bulkIndex[T any](
	ctx context.Context,
	s *IndexingService,
	entityType model.EntityType,
	items []T,
	mapFn func(T) (string, any, error),
) (*BulkReport, error) {
	start := time.Now()
	report := &BulkReport{
		EntityType: entityType,
		Total:      len(items),
		Failed:     make(map[string]string),
	}

	docs := make([]repository.BulkDocument, 0, len(items))
	for _, item := range items {
		id, doc, err := mapFn(item)
		if err != nil {
			report.Failed[id] = err.Error()
			s.logger.Warn("Skipping entity in bulk index",
				"entity_type", entityType.Label(),
				"entity_id", id,
				"error", err,
			)
			continue
		}
		docs = append(docs, repository.BulkDocument{ID: id, Body: doc})
	}

	if len(docs) > 0 {
		result, err := s.engine.BulkUpsert(ctx, entityType, docs)
		if err != nil {
			return nil, fmt.Errorf("bulk index of %d %s documents failed: %w", len(docs), entityType.Label(), err)
		}
		report.Indexed = result.Indexed
		for id, reason := range result.Failed {
			report.Failed[id] = reason
		}
	}

	report.Duration = time.Since(start)
	s.metrics.BulkDocuments.WithLabelValues(entityType.Label(), metrics.OutcomeIndexed).Add(float64(report.Indexed))
	s.metrics.BulkDocuments.WithLabelValues(entityType.Label(), metrics.OutcomeFailed).Add(float64(len(report.Failed)))

	s.logger.Info("Bulk index completed",
		"entity_type", entityType.Label(),
		"total", report.Total,
		"indexed", report.Indexed,
		"failed", len(report.Failed),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// The key helpers name an entity in a bulk report even when mapping fails.

func taskKey(t *model.Task) string {
	if t == nil {
		return "<nil>"
	}
	return events.FormatID(t.ID)
}

func projectKey(p *model.Project) string {
	if p == nil {
		return "<nil>"
	}
	return events.FormatID(p.ID)
}

func userKey(u *model.User) string {
	if u == nil {
		return "<nil>"
	}
	return events.FormatID(u.ID)
}

func teamKey(t *model.Team) string {
	if t == nil {
		return "<nil>"
	}
	return events.FormatID(t.ID)
}
