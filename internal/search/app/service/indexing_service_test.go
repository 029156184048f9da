package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

func TestIndexTaskIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := newTask(1, "Quarterly budget", 10, 20)

	require.NoError(t, f.indexer.IndexTask(ctx, task))
	first, ok := f.engine.Document(model.EntityTask, "1")
	require.True(t, ok)

	require.NoError(t, f.indexer.IndexTask(ctx, task))
	second, _ := f.engine.Document(model.EntityTask, "1")

	assert.Equal(t, 1, f.engine.Count(model.EntityTask))
	assert.JSONEq(t, string(first), string(second))
}

func TestIndexTaskMappingError(t *testing.T) {
	f := newFixture(t)
	err := f.indexer.IndexTask(context.Background(), &model.Task{ID: 1})
	assert.ErrorIs(t, err, ErrMapping)
	assert.Zero(t, f.engine.Count(model.EntityTask))
}

func TestDeleteMissingDocument(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.indexer.Delete(context.Background(), model.EntityTeam, "404"))
}

func TestBulkIndexContinuesPastBadEntities(t *testing.T) {
	f := newFixture(t)
	tasks := []*model.Task{
		newTask(1, "one", 1),
		{ID: 2, Title: "orphan"},
		newTask(3, "three", 1, 2),
	}

	report, err := f.indexer.BulkIndexTasks(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Indexed)
	require.Contains(t, report.Failed, "2")
	assert.Contains(t, report.Failed["2"], "no creator")
	assert.Equal(t, 2, f.engine.Count(model.EntityTask))
}

func TestBulkIndexEngineFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.FailIndex(model.EntityUser, errors.New("cluster unavailable"))

	_, err := f.indexer.BulkIndexUsers(context.Background(), []*model.User{{ID: 1}})
	assert.Error(t, err)
}

func TestBulkIndexEmpty(t *testing.T) {
	f := newFixture(t)
	report, err := f.indexer.BulkIndexProjects(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, report.Failed)
}
