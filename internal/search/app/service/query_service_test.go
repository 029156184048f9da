package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/repository/memory"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
)

func seed(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	for _, task := range []*model.Task{
		newTask(1, "Budget review", 10, 20),
		newTask(2, "Budget forecast", 20),
		newTask(3, "Hiring plan", 30, 10, 40),
	} {
		require.NoError(t, f.indexer.IndexTask(ctx, task))
	}
	for _, p := range []*model.Project{
		{ID: 1, Name: "Budget tooling", Private: true, Owner: ref(10, "Ann"), Members: []model.UserRef{{ID: 50, Name: "Eve"}}},
		{ID: 2, Name: "Open budget", Private: false, Owner: ref(30, "Cid")},
	} {
		require.NoError(t, f.indexer.IndexProject(ctx, p))
	}
	for _, u := range []*model.User{
		{ID: 10, FirstName: "Ann", LastName: "Budd", Email: "ann@example.com", Department: "Budget", Searchable: true, ProfileVisibility: model.ProfilePublic},
		{ID: 20, FirstName: "Ben", LastName: "Budd", Department: "Budget", Searchable: true, ProfileVisibility: model.ProfilePrivate},
		{ID: 30, FirstName: "Cid", LastName: "Budd", Department: "Budget", Searchable: false, ProfileVisibility: model.ProfilePublic},
		{ID: 40, FirstName: "Dee", LastName: "Budd", Department: "Budget", Searchable: true, Deactivated: true, ProfileVisibility: model.ProfilePublic},
		{ID: 50, FirstName: "Eve", LastName: "Budd", Department: "Budget", Searchable: true, ProfileVisibility: model.ProfileTeam},
	} {
		require.NoError(t, f.indexer.IndexUser(ctx, u))
	}
	for _, team := range []*model.Team{
		{ID: 1, Name: "Budget guild", Private: true, Leader: ref(20, "Ben"), Members: []model.UserRef{{ID: 40, Name: "Dee"}}},
		{ID: 2, Name: "Budget open house", Leader: ref(30, "Cid")},
	} {
		require.NoError(t, f.indexer.IndexTeam(ctx, team))
	}
}

func ids[T any](content []T, id func(T) string) []string {
	out := make([]string, 0, len(content))
	for _, c := range content {
		out = append(out, id(c))
	}
	return out
}

func TestAuthorizationFilters(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()
	page := model.NewPageRequest(0, 20)

	tests := []struct {
		name     string
		user     int64
		term     string
		tasks    []string
		projects []string
		users    []string
		teams    []string
	}{
		{
			name:     "creator and assignee",
			user:     10,
			tasks:    []string{"1", "3"},
			projects: []string{"1", "2"},
			users:    []string{"10", "50"},
			teams:    []string{"2"},
		},
		{
			name:     "sole creator",
			user:     20,
			term:     "budget",
			tasks:    []string{"1", "2"},
			projects: []string{"2"},
			users:    []string{"10", "20", "50"},
			teams:    []string{"1", "2"},
		},
		{
			name:     "member only",
			user:     50,
			tasks:    []string{},
			projects: []string{"1", "2"},
			users:    []string{"10", "50"},
			teams:    []string{"2"},
		},
		{
			name:     "unrelated user",
			user:     99,
			tasks:    []string{},
			projects: []string{"2"},
			users:    []string{"10", "50"},
			teams:    []string{"2"},
		},
		{
			name:     "no principal fails closed",
			user:     0,
			tasks:    []string{},
			projects: []string{"2"},
			users:    []string{"10"},
			teams:    []string{"2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := f.query.SearchTasks(ctx, tt.term, tt.user, page)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.tasks, taskIDs(tasks), "tasks")

			projects, err := f.query.SearchProjects(ctx, tt.term, tt.user, page)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.projects, ids(projects.Content, func(d model.ProjectDocument) string { return d.ID }), "projects")

			users, err := f.query.SearchUsers(ctx, tt.term, tt.user, page)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.users, ids(users.Content, func(d model.UserDocument) string { return d.ID }), "users")

			teams, err := f.query.SearchTeams(ctx, tt.term, tt.user, page)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.teams, ids(teams.Content, func(d model.TeamDocument) string { return d.ID }), "teams")
		})
	}
}

func TestSearchByEmailAndID(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	users, err := f.query.SearchUsers(ctx, "ANN@example.com", 99, model.PageRequest{Size: 5, Sort: model.SortRelevance})
	require.NoError(t, err)
	require.NotEmpty(t, users.Content)
	assert.Equal(t, "10", users.Content[0].ID)

	tasks, err := f.query.SearchTasks(ctx, "#3", 10, model.NewPageRequest(0, 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, taskIDs(tasks))
}

func TestPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, f.indexer.IndexTask(ctx, newTask(i, "sprint item", 1)))
	}

	page, err := f.query.SearchTasks(ctx, "sprint", 1, model.PageRequest{Page: 1, Size: 2, Sort: model.SortNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, taskIDs(page))
	assert.Equal(t, int64(5), page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrevious)
}

func TestSearchPastResultWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deep := model.PageRequest{Page: math.MaxInt, Size: 100}

	_, err := f.query.SearchTasks(ctx, "anything", 1, deep)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.NotErrorIs(t, err, ErrSearchUnavailable)
	assert.ErrorIs(t, f.query.CheckPage(model.PageRequest{Page: 500}), ErrPageOutOfRange)
	assert.NoError(t, f.query.CheckPage(model.PageRequest{Page: 499}))
}

func TestDefaultOrderIsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, f.indexer.IndexTask(ctx, newTask(i, "standup notes", 1)))
	}

	page, err := f.query.SearchTasks(ctx, "standup", 1, model.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, taskIDs(page))
}

func TestRankingOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tasks := []*model.Task{
		newTask(1, "release", 1),
		newTask(2, "release", 1),
		newTask(3, "release", 1),
		newTask(4, "release", 1),
	}
	// Engagement scores: 10, 10 (newer), 3, 0.
	tasks[0].LikeCount = 10
	tasks[1].CommentCount = 5
	tasks[2].LikeCount, tasks[2].CommentCount = 1, 1
	tasks[0].Pinned = true
	for _, task := range tasks {
		require.NoError(t, f.indexer.IndexTask(ctx, task))
	}

	tests := []struct {
		order model.SortOrder
		want  []string
	}{
		{model.SortNewest, []string{"4", "3", "2", "1"}},
		{model.SortTrending, []string{"2", "1", "3", "4"}},
		{model.SortPinned, []string{"1", "4", "3", "2"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			page, err := f.query.SearchTasks(ctx, "release", 1, model.PageRequest{Size: 10, Sort: tt.order})
			require.NoError(t, err)
			assert.Equal(t, tt.want, taskIDs(page))
		})
	}
}

func TestRankIgnoresUnsupportedOrders(t *testing.T) {
	assert.Equal(t, model.SortNewest, effectiveOrder(model.EntityProject, model.SortTrending))
	assert.Equal(t, model.SortNewest, effectiveOrder(model.EntityUser, model.SortNewest))
	assert.Nil(t, engineSort(model.SortRelevance))
}

func TestSingleEntitySearchSurfacesFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.FailIndex(model.EntityTask, errors.New("connection refused"))

	page, err := f.query.SearchTasks(context.Background(), "x", 1, model.NewPageRequest(0, 10))
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	assert.Empty(t, page.Content)
}

func TestGlobalSearchDegradesPerType(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	f.engine.FailIndex(model.EntityUser, errors.New("shard failure"))
	f.engine.SetLatency(model.EntityTeam, time.Second)

	result := f.query.GlobalSearch(context.Background(), "budget", 10, model.NewPageRequest(0, 10))

	assert.Equal(t, []model.EntityType{model.EntityUser, model.EntityTeam}, result.Degraded)
	require.NotNil(t, result.Users)
	assert.Empty(t, result.Users.Content)
	assert.Empty(t, result.Teams.Content)
	assert.Equal(t, []string{"1"}, taskIDs(*result.Tasks))
	assert.Len(t, result.Projects.Content, 2)
	assert.Equal(t, int64(3), result.TotalElements)
}

func TestUnifiedSearchSelectsTypes(t *testing.T) {
	f := newFixture(t)
	seed(t, f)

	result := f.query.UnifiedSearch(context.Background(), "budget", 20,
		[]model.EntityType{model.EntityTeam, model.EntityTask, model.EntityTask}, model.PageRequest{})

	assert.Nil(t, result.Projects)
	assert.Nil(t, result.Users)
	require.NotNil(t, result.Tasks)
	require.NotNil(t, result.Teams)
	assert.Equal(t, 20, result.Tasks.PageSize)
	assert.Equal(t, int64(4), result.TotalElements)
	assert.Empty(t, result.Degraded)
}

func TestQuickSearchUsesSmallPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, f.indexer.IndexTask(ctx, newTask(i, "standup notes", 1)))
	}

	result := f.query.QuickSearch(ctx, "standup", 1)
	assert.Len(t, result.Tasks.Content, 5)
	assert.Equal(t, int64(8), result.Tasks.TotalElements)
}

func TestCircuitBreakerShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.engine.FailIndex(model.EntityProject, errors.New("timeout"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.query.SearchProjects(ctx, "", 1, model.PageRequest{})
	}
	f.engine.FailIndex(model.EntityProject, nil)

	_, err := f.query.SearchProjects(ctx, "", 1, model.PageRequest{})
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	assert.Equal(t, "open", f.query.Breakers().Stats()["search.project"].State)
}

func TestAutocomplete(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	items := f.query.Autocomplete(ctx, "bud", 10, nil, 10)
	require.NotEmpty(t, items)
	texts := make(map[string]model.EntityType)
	for _, item := range items {
		texts[item.Text] = item.Type
	}
	assert.Equal(t, model.EntityTask, texts["Budget review"])
	assert.Equal(t, model.EntityProject, texts["Budget tooling"])
	assert.NotContains(t, texts, "Budget forecast", "task 2 is not visible to user 10")
	assert.NotContains(t, texts, "Budget guild", "private team")

	assert.Len(t, f.query.Autocomplete(ctx, "bud", 10, nil, 2), 2)
	assert.Empty(t, f.query.Autocomplete(ctx, "  ", 10, nil, 5))
}

// cannedEngine answers every search with the same hits.
type cannedEngine struct {
	*memory.Engine
	hits *model.RawHits
}

func (c cannedEngine) Search(context.Context, model.EntityType, query.SearchRequest) (*model.RawHits, error) {
	return c.hits, nil
}

func TestMalformedHitsDecodeDefensively(t *testing.T) {
	f := newFixture(t)
	hits := &model.RawHits{Total: 3, Hits: []model.RawHit{
		{ID: "1", Source: json.RawMessage(`{"title":"ok","creatorId":"7","visibleToUserIds":[7,"8",null,"x"],"tags":"solo","pinned":"yes","createdAt":"2026-01-02T03:04:05Z"}`)},
		{ID: "2", Source: json.RawMessage(`[1,2,3]`)},
		{ID: "3", Source: json.RawMessage(`{"title":42,"likeCount":"many","dueDate":null}`)},
	}}
	svc := NewQueryService(cannedEngine{Engine: f.engine, hits: hits}, QueryOptions{}, f.metrics, nil, logger.NewNop())

	page, err := svc.SearchTasks(context.Background(), "", 7, model.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, int64(3), page.TotalElements)

	first := page.Content[0]
	assert.Equal(t, "ok", first.Title)
	assert.Equal(t, int64(7), first.CreatorID)
	assert.Equal(t, []int64{7, 8}, first.VisibleToUserIDs)
	assert.Equal(t, []string{"solo"}, first.Tags)
	assert.False(t, first.Pinned)
	assert.Equal(t, 2026, first.CreatedAt.Year())

	second := page.Content[1]
	assert.Equal(t, "3", second.ID)
	assert.Equal(t, "42", second.Title)
	assert.Zero(t, second.LikeCount)
	assert.Nil(t, second.DueDate)
}
