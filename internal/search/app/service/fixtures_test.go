package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/repository/memory"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", prometheus.NewRegistry())
}

// fakeSink records published and dead-lettered events.
type fakeSink struct {
	mu      sync.Mutex
	events  []*events.IndexEvent
	dead    []*events.IndexEvent
	causes  []error
	err     error
	deadErr error
}

func (s *fakeSink) Publish(ctx context.Context, event *events.IndexEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) PublishDeadLetter(ctx context.Context, event *events.IndexEvent, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deadErr != nil {
		return s.deadErr
	}
	s.dead = append(s.dead, event)
	s.causes = append(s.causes, cause)
	return nil
}

func (s *fakeSink) Published() []*events.IndexEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.IndexEvent(nil), s.events...)
}

func (s *fakeSink) DeadLettered() []*events.IndexEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.IndexEvent(nil), s.dead...)
}

// fakeSource is an in-memory system of record. The next failTimes calls
// return err.
type fakeSource[T any] struct {
	mu        sync.Mutex
	items     map[string]T
	err       error
	failTimes int
	calls     int
}

func newFakeSource[T any]() *fakeSource[T] {
	return &fakeSource[T]{items: make(map[string]T)}
}

func (s *fakeSource[T]) Put(id int64, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[events.FormatID(id)] = item
}

func (s *fakeSource[T]) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, events.FormatID(id))
}

func (s *fakeSource[T]) FailNext(err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err, s.failTimes = err, times
}

func (s *fakeSource[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource[T]) takeError() error {
	s.calls++
	if s.failTimes == 0 {
		return nil
	}
	if s.failTimes > 0 {
		s.failTimes--
	}
	return s.err
}

func (s *fakeSource[T]) FindByID(ctx context.Context, id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if err := s.takeError(); err != nil {
		return zero, err
	}
	item, ok := s.items[id]
	if !ok {
		return zero, repository.ErrEntityNotFound
	}
	return item, nil
}

func (s *fakeSource[T]) FindAll(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeError(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}

// fixture wires the indexing pipeline and the query service around one
// in-memory engine.
type fixture struct {
	engine   *memory.Engine
	tasks    *fakeSource[*model.Task]
	projects *fakeSource[*model.Project]
	users    *fakeSource[*model.User]
	teams    *fakeSource[*model.Team]
	sink     *fakeSink
	metrics  *metrics.Metrics
	indexer  *IndexingService
	consumer *EventConsumer
	query    *QueryService
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	f := &fixture{
		engine:   memory.NewEngine(opts...),
		tasks:    newFakeSource[*model.Task](),
		projects: newFakeSource[*model.Project](),
		users:    newFakeSource[*model.User](),
		teams:    newFakeSource[*model.Team](),
		sink:     &fakeSink{},
		metrics:  newTestMetrics(),
	}
	log := logger.NewNop()
	f.indexer = NewIndexingService(f.engine, f.metrics, log)
	f.consumer = NewEventConsumer(
		f.indexer,
		Sources{Tasks: f.tasks, Projects: f.projects, Users: f.users, Teams: f.teams},
		f.sink,
		config.ConsumerConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        2 * time.Millisecond,
			DeadLetterEnabled: true,
		},
		f.metrics,
		nil,
		log,
	)
	f.query = NewQueryService(f.engine, QueryOptions{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		AutocompleteSize: 10,
		QuickSearchSize:  5,
		Timeout:          200 * time.Millisecond,
	}, f.metrics, nil, log)
	return f
}

func (f *fixture) handle(t *testing.T, eventType events.EventType, entityType model.EntityType, id int64) error {
	t.Helper()
	event, err := events.NewIndexEvent(eventType, string(entityType), events.FormatID(id), nil)
	require.NoError(t, err)
	return f.consumer.Handle(context.Background(), event)
}

func ref(id int64, name string) *model.UserRef {
	return &model.UserRef{ID: id, Name: name}
}

func newTask(id int64, title string, creator int64, assignees ...int64) *model.Task {
	t := &model.Task{
		ID:        id,
		Title:     title,
		Status:    "TODO",
		Priority:  "MEDIUM",
		Creator:   ref(creator, "creator"),
		CreatedAt: baseTime.Add(time.Duration(id) * time.Minute),
		UpdatedAt: baseTime.Add(time.Duration(id) * time.Minute),
	}
	for _, a := range assignees {
		t.Assignees = append(t.Assignees, model.UserRef{ID: a, Name: "assignee"})
	}
	return t
}

func taskIDs(p model.Page[model.TaskDocument]) []string {
	ids := make([]string, 0, len(p.Content))
	for _, d := range p.Content {
		ids = append(ids, d.ID)
	}
	return ids
}
