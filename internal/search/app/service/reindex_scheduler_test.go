package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/platform/cache"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
)

func newScheduler(t *testing.T, sink *fakeSink, schedule string) (*ReindexScheduler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := cache.NewFromClient(client, "taskflow")

	emitter := NewChangeEmitter(sink, newTestMetrics(), logger.NewNop())
	newLock := func(key string, ttl time.Duration) DistributedLock { return store.NewLock(key, ttl) }
	return NewReindexScheduler(emitter, newLock, schedule, logger.NewNop()), mr
}

func TestReindexRunsOncePerLockWindow(t *testing.T) {
	sink := &fakeSink{}
	scheduler, mr := newScheduler(t, sink, "@daily")
	ctx := context.Background()

	require.NoError(t, scheduler.RunOnce(ctx))
	require.Len(t, sink.Published(), 4)
	var types []string
	for _, e := range sink.Published() {
		types = append(types, e.EntityType)
	}
	assert.Equal(t, []string{"TASK", "PROJECT", "USER", "TEAM"}, types)

	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Len(t, sink.Published(), 4, "second run inside the lock window is skipped")

	mr.FastForward(31 * time.Minute)
	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Len(t, sink.Published(), 8)
}

func TestReindexFailureReleasesLock(t *testing.T) {
	sink := &fakeSink{err: errors.New("broker down")}
	scheduler, mr := newScheduler(t, sink, "@daily")
	ctx := context.Background()

	assert.ErrorContains(t, scheduler.RunOnce(ctx), "broker down")
	assert.False(t, mr.Exists("taskflow:lock:search:reindex:lock"))

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	require.NoError(t, scheduler.RunOnce(ctx))
	assert.Len(t, sink.Published(), 4)
}

func TestReindexLockUnavailable(t *testing.T) {
	scheduler, mr := newScheduler(t, &fakeSink{}, "@daily")
	mr.SetError("LOADING")

	assert.ErrorContains(t, scheduler.RunOnce(context.Background()), "reindex lock")
}

func TestReindexSchedulerStartStop(t *testing.T) {
	scheduler, _ := newScheduler(t, &fakeSink{}, "0 3 * * *")
	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())
	scheduler.Stop()
	scheduler.Stop()

	bad, _ := newScheduler(t, &fakeSink{}, "every tuesday")
	assert.Error(t, bad.Start())
}
