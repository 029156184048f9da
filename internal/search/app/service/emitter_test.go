package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

type panicSink struct{}

func (panicSink) Publish(context.Context, *events.IndexEvent) error { panic("broker exploded") }

func TestEmitPublishesInBackground(t *testing.T) {
	sink := &fakeSink{}
	emitter := NewChangeEmitter(sink, newTestMetrics(), logger.NewNop())

	emitter.Emit(model.EntityTask, events.EventUpdate, 42, events.UserID(3))

	require.Eventually(t, func() bool { return len(sink.Published()) == 1 }, time.Second, 5*time.Millisecond)
	event := sink.Published()[0]
	assert.Equal(t, events.EventUpdate, event.EventType)
	assert.Equal(t, "TASK", event.EntityType)
	assert.Equal(t, "42", event.EntityID)
	assert.Equal(t, int64(3), *event.TriggeredByUserID)
	assert.NotEmpty(t, event.ID)
}

func TestEmitSwallowsFailures(t *testing.T) {
	m := newTestMetrics()
	emitter := NewChangeEmitter(&fakeSink{err: errors.New("broker down")}, m, logger.NewNop())

	emitter.Emit(model.EntityProject, events.EventCreate, 1, nil)
	emitter.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures.WithLabelValues("project")))
}

func TestEmitRecoversFromPanickingSink(t *testing.T) {
	m := newTestMetrics()
	emitter := NewChangeEmitter(panicSink{}, m, logger.NewNop())

	emitter.Emit(model.EntityTeam, events.EventDelete, 9, nil)
	emitter.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures.WithLabelValues("team")))
}

func TestEmitDropsInvalidAndLateEvents(t *testing.T) {
	sink := &fakeSink{}
	emitter := NewChangeEmitter(sink, newTestMetrics(), logger.NewNop())

	emitter.Emit(model.EntityTask, events.EventType("EXPLODE"), 1, nil)
	emitter.Close()
	emitter.Emit(model.EntityTask, events.EventCreate, 2, nil)

	assert.Empty(t, sink.Published())
}

func TestPublishBulkReindex(t *testing.T) {
	sink := &fakeSink{}
	emitter := NewChangeEmitter(sink, newTestMetrics(), logger.NewNop())

	event, err := emitter.PublishBulkReindex(context.Background(), model.EntityUser)
	require.NoError(t, err)
	assert.Equal(t, events.EventBulkReindex, event.EventType)
	assert.Equal(t, "bulk:USER", event.Key())
	assert.Len(t, sink.Published(), 1)

	sink.err = errors.New("broker down")
	_, err = emitter.PublishBulkReindex(context.Background(), model.EntityUser)
	assert.ErrorContains(t, err, "broker down")
}
