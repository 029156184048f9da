package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

func seedTasks(t *testing.T, e *Engine) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []model.TaskDocument{
		{ID: "1", Title: "Budget report", CreatorID: 1, VisibleToUserIDs: []int64{1, 2}, Tags: []string{"finance"}, CreatedAt: base},
		{ID: "2", Title: "Team offsite", Description: "budget pending", CreatorID: 2, VisibleToUserIDs: []int64{2}, CreatedAt: base.Add(time.Hour)},
		{ID: "3", Title: "Quarterly review", CreatorID: 3, VisibleToUserIDs: []int64{3}, Pinned: true, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, d := range docs {
		require.NoError(t, e.Upsert(context.Background(), model.EntityTask, d.ID, d))
	}
}

func ids(hits *model.RawHits) []string {
	out := make([]string, 0, len(hits.Hits))
	for _, h := range hits.Hits {
		out = append(out, h.ID)
	}
	return out
}

func TestEngineSearch(t *testing.T) {
	e := NewEngine()
	seedTasks(t, e)

	tests := []struct {
		name  string
		req   query.SearchRequest
		want  []string
		total int64
	}{
		{
			name:  "match all sorted by id on equal score",
			req:   query.SearchRequest{Query: query.MatchAll{}, Size: 10},
			want:  []string{"1", "2", "3"},
			total: 3,
		},
		{
			name: "multi match weights title above description",
			req: query.SearchRequest{
				Query: query.MultiMatch{Query: "budget", Fields: []query.Field{{Name: "title", Boost: 3}, {Name: "description"}}},
				Size:  10,
			},
			want:  []string{"1", "2"},
			total: 2,
		},
		{
			name: "term on array field",
			req: query.SearchRequest{
				Query: query.NewBool().AddMust(query.MatchAll{}).AddFilter(query.Term{Field: "visibleToUserIds", Value: query.Int(2)}),
				Size:  10,
			},
			want:  []string{"1", "2"},
			total: 2,
		},
		{
			name: "must not",
			req: query.SearchRequest{
				Query: query.NewBool().AddMust(query.MatchAll{}).AddMustNot(query.Term{Field: "pinned", Value: query.Bool(true)}),
				Size:  10,
			},
			want:  []string{"1", "2"},
			total: 2,
		},
		{
			name: "should with minimum",
			req: query.SearchRequest{
				Query: query.AnyOf(query.Term{Field: "creatorId", Value: query.Int(3)}, query.Term{Field: "tags", Value: query.String("FINANCE")}),
				Size:  10,
			},
			want:  []string{"1", "3"},
			total: 2,
		},
		{
			name: "phrase prefix",
			req: query.SearchRequest{
				Query: query.MatchPhrasePrefix{Field: "title", Query: "quart"},
				Size:  10,
			},
			want:  []string{"3"},
			total: 1,
		},
		{
			name: "field sort with paging",
			req: query.SearchRequest{
				Query: query.MatchAll{},
				From:  1,
				Size:  1,
				Sort:  []query.Sort{{Field: "createdAt", Desc: true}},
			},
			want:  []string{"2"},
			total: 3,
		},
		{
			name:  "match none",
			req:   query.SearchRequest{Query: query.MatchNone{}, Size: 10},
			want:  []string{},
			total: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := e.Search(context.Background(), model.EntityTask, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(hits))
			assert.Equal(t, tt.total, hits.Total)
		})
	}
}

func TestEngineRejectsInvalidRequest(t *testing.T) {
	e := NewEngine()
	_, err := e.Search(context.Background(), model.EntityTask, query.SearchRequest{Query: query.Term{Field: "x"}, Size: 1})
	assert.True(t, errors.Is(err, query.ErrInvalidQuery))
}

func TestEngineManualRefresh(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(WithManualRefresh())
	require.NoError(t, e.Upsert(ctx, model.EntityTeam, "7", model.TeamDocument{ID: "7", Name: "Platform"}))

	assert.Equal(t, 0, e.Count(model.EntityTeam))
	require.NoError(t, e.Refresh(ctx, model.EntityTeam))
	assert.Equal(t, 1, e.Count(model.EntityTeam))

	require.NoError(t, e.Delete(ctx, model.EntityTeam, "7"))
	assert.Equal(t, 1, e.Count(model.EntityTeam))
	require.NoError(t, e.Refresh(ctx, model.EntityTeam))
	assert.Equal(t, 0, e.Count(model.EntityTeam))
}

func TestEngineUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	doc := model.ProjectDocument{ID: "5", Name: "Apollo", Privacy: model.PrivacyPublic}
	require.NoError(t, e.Upsert(ctx, model.EntityProject, "5", doc))
	require.NoError(t, e.Upsert(ctx, model.EntityProject, "5", doc))
	assert.Equal(t, 1, e.Count(model.EntityProject))

	require.NoError(t, e.Delete(ctx, model.EntityProject, "5"))
	require.NoError(t, e.Delete(ctx, model.EntityProject, "5"))
	assert.Equal(t, 0, e.Count(model.EntityProject))
}

func TestEngineFailureInjection(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	boom := errors.New("connection refused")

	e.FailIndexTimes(model.EntityUser, boom, 2)
	assert.ErrorIs(t, e.Upsert(ctx, model.EntityUser, "1", model.UserDocument{ID: "1"}), boom)
	_, err := e.Search(ctx, model.EntityUser, query.SearchRequest{Query: query.MatchAll{}, Size: 1})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, e.Upsert(ctx, model.EntityUser, "1", model.UserDocument{ID: "1"}))

	e.FailIndex(model.EntityUser, boom)
	_, err = e.BulkUpsert(ctx, model.EntityUser, []repository.BulkDocument{{ID: "2", Body: model.UserDocument{ID: "2"}}})
	assert.ErrorIs(t, err, boom)
	e.FailIndex(model.EntityUser, nil)
	assert.NoError(t, e.Delete(ctx, model.EntityUser, "1"))
}

func TestEngineLatencyHonorsContext(t *testing.T) {
	e := NewEngine()
	e.SetLatency(model.EntityTeam, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Search(ctx, model.EntityTeam, query.SearchRequest{Query: query.MatchAll{}, Size: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineBulkUpsertReportsBadDocuments(t *testing.T) {
	e := NewEngine()
	result, err := e.BulkUpsert(context.Background(), model.EntityTask, []repository.BulkDocument{
		{ID: "1", Body: model.TaskDocument{ID: "1"}},
		{ID: "2", Body: "not an object"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Contains(t, result.Failed, "2")
}
