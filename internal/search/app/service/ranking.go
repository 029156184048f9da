package service

import (
	"cmp"
	"slices"
	"time"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
)

// RankKey is what the ranking policies look at.
type RankKey struct {
	CreatedAt time.Time
	Likes     int
	Comments  int
	Pinned    bool
}

// Rank orders items in place:
//   - newest: CreatedAt descending.
//   - trending: likes + 2*comments descending, then newest.
//   - pinned: pinned first, then newest within each group.
//
// Relevance leaves the engine order untouched. Sorting is stable.
func Rank[T any](items []T, order model.SortOrder, key func(T) RankKey) {
	var less func(a, b RankKey) int
	switch order {
	case model.SortNewest:
		less = byNewest
	case model.SortTrending:
		less = func(a, b RankKey) int {
			if c := cmp.Compare(EngagementScore(b.Likes, b.Comments), EngagementScore(a.Likes, a.Comments)); c != 0 {
				return c
			}
			return byNewest(a, b)
		}
	case model.SortPinned:
		less = func(a, b RankKey) int {
			if a.Pinned != b.Pinned {
				if a.Pinned {
					return -1
				}
				return 1
			}
			return byNewest(a, b)
		}
	default:
		return
	}
	slices.SortStableFunc(items, func(a, b T) int { return less(key(a), key(b)) })
}

func byNewest(a, b RankKey) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

func taskRankKey(d model.TaskDocument) RankKey {
	return RankKey{CreatedAt: d.CreatedAt, Likes: d.LikeCount, Comments: d.CommentCount, Pinned: d.Pinned}
}

func projectRankKey(d model.ProjectDocument) RankKey { return RankKey{CreatedAt: d.CreatedAt} }
func userRankKey(d model.UserDocument) RankKey       { return RankKey{CreatedAt: d.CreatedAt} }
func teamRankKey(d model.TeamDocument) RankKey       { return RankKey{CreatedAt: d.CreatedAt} }

// effectiveOrder maps orders an entity type cannot honor to the default
// order. Only tasks carry engagement counters and a pinned flag.
func effectiveOrder(entityType model.EntityType, order model.SortOrder) model.SortOrder {
	if entityType != model.EntityTask && (order == model.SortTrending || order == model.SortPinned) {
		return model.DefaultSortOrder
	}
	return order
}

// engineSort pushes the ranking policy down to the engine so that it holds
// across pages.
func engineSort(order model.SortOrder) []query.Sort {
	newest := query.Sort{Field: "createdAt", Desc: true}
	switch order {
	case model.SortNewest:
		return []query.Sort{newest}
	case model.SortTrending:
		return []query.Sort{{Field: "engagementScore", Desc: true}, newest}
	case model.SortPinned:
		return []query.Sort{{Field: "pinned", Desc: true}, newest}
	}
	return nil
}
