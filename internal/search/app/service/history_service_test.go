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

// tickingClock advances one second per reading so that every save gets a
// distinct history score.
type tickingClock struct{ t time.Time }

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newHistory(t *testing.T, opts HistoryOptions) (*HistoryService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &tickingClock{t: baseTime}
	svc := NewHistoryService(cache.NewFromClient(client, ""), opts, newTestMetrics(), logger.NewNop())
	return svc.WithClock(clock.Now), mr
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "  Budget   Report ", want: "budget report", ok: true},
		{in: "ab", want: "ab", ok: true},
		{in: "a", ok: false},
		{in: "   ", ok: false},
		{in: "é", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeTerm(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchHistoryNewestFirstWithoutDuplicates(t *testing.T) {
	svc, _ := newHistory(t, HistoryOptions{})
	ctx := context.Background()

	for _, term := range []string{"a", "budget report", "Budget Report", "tasks due"} {
		require.NoError(t, svc.SaveSearchHistory(ctx, 7, term))
	}

	history, err := svc.GetSearchHistory(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks due", "budget report"}, history)

	popular, err := svc.GetPopularSearchTerms(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []PopularTerm{{Term: "budget report", Count: 2}, {Term: "tasks due", Count: 1}}, popular)
}

func TestSearchHistoryOrderWithinOneMillisecond(t *testing.T) {
	svc, _ := newHistory(t, HistoryOptions{})
	svc.WithClock(func() time.Time { return baseTime })
	ctx := context.Background()

	for _, term := range []string{"gamma", "beta", "alpha", "gamma"} {
		require.NoError(t, svc.SaveSearchHistory(ctx, 7, term))
	}

	history, err := svc.GetSearchHistory(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "alpha", "beta"}, history)
}

func TestSearchHistoryResavedTermMovesToFront(t *testing.T) {
	svc, _ := newHistory(t, HistoryOptions{})
	ctx := context.Background()

	for _, term := range []string{"alpha", "beta", "alpha"} {
		require.NoError(t, svc.SaveSearchHistory(ctx, 7, term))
	}

	history, err := svc.GetSearchHistory(ctx, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, history)
}

func TestSearchHistoryCappedAtMaxSize(t *testing.T) {
	svc, mr := newHistory(t, HistoryOptions{MaxSize: 3})
	ctx := context.Background()

	for _, term := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, svc.SaveSearchHistory(ctx, 7, term))
	}

	history, err := svc.GetSearchHistory(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"five", "four", "three"}, history)

	members, err := mr.ZMembers("search:history:7")
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestSearchHistoryTTLs(t *testing.T) {
	svc, mr := newHistory(t, HistoryOptions{})
	require.NoError(t, svc.SaveSearchHistory(context.Background(), 7, "roadmap"))

	assert.Equal(t, 30*24*time.Hour, mr.TTL("search:history:7"))
	assert.Equal(t, 7*24*time.Hour, mr.TTL("search:popular"))

	mr.FastForward(31 * 24 * time.Hour)
	history, err := svc.GetSearchHistory(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSearchHistoryIsPerUser(t *testing.T) {
	svc, _ := newHistory(t, HistoryOptions{})
	ctx := context.Background()
	require.NoError(t, svc.SaveSearchHistory(ctx, 1, "mine"))
	require.NoError(t, svc.SaveSearchHistory(ctx, 2, "theirs"))

	history, err := svc.GetSearchHistory(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, history)
}

func TestClearAndRemoveSearchHistory(t *testing.T) {
	svc, _ := newHistory(t, HistoryOptions{})
	ctx := context.Background()
	for _, term := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, svc.SaveSearchHistory(ctx, 7, term))
	}

	require.NoError(t, svc.RemoveSearchHistoryItem(ctx, 7, "  BETA "))
	history, err := svc.GetSearchHistory(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "alpha"}, history)

	require.NoError(t, svc.ClearSearchHistory(ctx, 7))
	history, err = svc.GetSearchHistory(ctx, 7, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	popular, err := svc.GetPopularSearchTerms(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, popular, 3, "clearing history keeps popularity")
}

func TestSearchHistoryRequiresUser(t *testing.T) {
	svc, _ := newHistory(t, HistoryOptions{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.SaveSearchHistory(ctx, 0, "roadmap"), ErrUserRequired)
	_, err := svc.GetSearchHistory(ctx, -1, 10)
	assert.ErrorIs(t, err, ErrUserRequired)
	assert.ErrorIs(t, svc.ClearSearchHistory(ctx, 0), ErrUserRequired)
	assert.ErrorIs(t, svc.RemoveSearchHistoryItem(ctx, 0, "x"), ErrUserRequired)
}

func TestSearchHistoryStoreUnavailable(t *testing.T) {
	svc, mr := newHistory(t, HistoryOptions{})
	mr.SetError("LOADING")

	err := svc.SaveSearchHistory(context.Background(), 7, "roadmap")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUserRequired))

	// The query path swallows the failure.
	svc.RecordSearch(context.Background(), 7, "roadmap")
}
