package service

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

// Hits are decoded field by field. A missing, null or wrongly typed field
// becomes the zero value of its Go type instead of failing the whole page;
// only a hit whose source is not a JSON object is skipped.

type source map[string]json.RawMessage

func parseSource(hit model.RawHit) (source, bool) {
	var src source
	if err := json.Unmarshal(hit.Source, &src); err != nil || src == nil {
		return nil, false
	}
	return src, true
}

func (s source) text(key string) string {
	var v string
	if json.Unmarshal(s[key], &v) == nil {
		return v
	}
	// Numbers are accepted where strings are expected, e.g. ids.
	var n json.Number
	if json.Unmarshal(s[key], &n) == nil {
		return n.String()
	}
	return ""
}

func (s source) num(key string) int64 {
	raw, ok := s[key]
	if !ok {
		return 0
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil && !math.IsNaN(f) && math.Abs(f) < math.MaxInt64 {
		return int64(f)
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func (s source) count(key string) int {
	return int(s.num(key))
}

func (s source) flag(key string) bool {
	var v bool
	if json.Unmarshal(s[key], &v) == nil {
		return v
	}
	return false
}

func (s source) date(key string) time.Time {
	var v time.Time
	if json.Unmarshal(s[key], &v) == nil {
		return v
	}
	return time.Time{}
}

func (s source) optionalDate(key string) *time.Time {
	t := s.date(key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// ids accepts an array or a single scalar and skips bad elements.
func (s source) ids(key string) []int64 {
	out := []int64{}
	var items []json.RawMessage
	if json.Unmarshal(s[key], &items) != nil {
		if n := s.num(key); n != 0 {
			out = append(out, n)
		}
		return out
	}
	for _, item := range items {
		if n := (source{"v": item}).num("v"); n != 0 {
			out = append(out, n)
		}
	}
	return out
}

// list accepts an array or a single string and skips bad elements.
func (s source) list(key string) []string {
	out := []string{}
	var items []json.RawMessage
	if json.Unmarshal(s[key], &items) != nil {
		if v := s.text(key); v != "" {
			out = append(out, v)
		}
		return out
	}
	for _, item := range items {
		if v := (source{"v": item}).text("v"); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// id prefers the engine's _id over the id stored in the document.
func (s source) id(hit model.RawHit) string {
	if hit.ID != "" {
		return hit.ID
	}
	return s.text("id")
}

func decodeTask(hit model.RawHit) (model.TaskDocument, bool) {
	s, ok := parseSource(hit)
	if !ok {
		return model.TaskDocument{}, false
	}
	return model.TaskDocument{
		ID:               s.id(hit),
		Title:            s.text("title"),
		Description:      s.text("description"),
		Status:           s.text("status"),
		Priority:         s.text("priority"),
		CreatorID:        s.num("creatorId"),
		CreatorName:      s.text("creatorName"),
		AssigneeID:       s.num("assigneeId"),
		AssigneeName:     s.text("assigneeName"),
		VisibleToUserIDs: s.ids("visibleToUserIds"),
		ProjectID:        s.num("projectId"),
		ProjectName:      s.text("projectName"),
		Tags:             s.list("tags"),
		DueDate:          s.optionalDate("dueDate"),
		Completed:        s.flag("completed"),
		Pinned:           s.flag("pinned"),
		LikeCount:        s.count("likeCount"),
		CommentCount:     s.count("commentCount"),
		EngagementScore:  s.count("engagementScore"),
		CreatedAt:        s.date("createdAt"),
		UpdatedAt:        s.date("updatedAt"),
		SchemaVersion:    s.count("schemaVersion"),
		Score:            hit.Score,
	}, true
}

func decodeProject(hit model.RawHit) (model.ProjectDocument, bool) {
	s, ok := parseSource(hit)
	if !ok {
		return model.ProjectDocument{}, false
	}
	return model.ProjectDocument{
		ID:                 s.id(hit),
		Name:               s.text("name"),
		Description:        s.text("description"),
		Status:             s.text("status"),
		Privacy:            s.text("privacy"),
		OwnerID:            s.num("ownerId"),
		OwnerName:          s.text("ownerName"),
		MemberIDs:          s.ids("memberIds"),
		MemberNames:        s.list("memberNames"),
		Tags:               s.list("tags"),
		StartDate:          s.optionalDate("startDate"),
		EndDate:            s.optionalDate("endDate"),
		TaskCount:          s.count("taskCount"),
		CompletedTaskCount: s.count("completedTaskCount"),
		CreatedAt:          s.date("createdAt"),
		SchemaVersion:      s.count("schemaVersion"),
		Score:              hit.Score,
	}, true
}

func decodeUser(hit model.RawHit) (model.UserDocument, bool) {
	s, ok := parseSource(hit)
	if !ok {
		return model.UserDocument{}, false
	}
	return model.UserDocument{
		ID:                s.id(hit),
		Email:             s.text("email"),
		Username:          s.text("username"),
		FirstName:         s.text("firstName"),
		LastName:          s.text("lastName"),
		FullName:          s.text("fullName"),
		Department:        s.text("department"),
		Skills:            s.list("skills"),
		Location:          s.text("location"),
		Searchable:        s.flag("searchable"),
		ProfileVisibility: s.text("profileVisibility"),
		IsDeactivated:     s.flag("isDeactivated"),
		FollowerCount:     s.count("followerCount"),
		FollowingCount:    s.count("followingCount"),
		PostCount:         s.count("postCount"),
		CreatedAt:         s.date("createdAt"),
		SchemaVersion:     s.count("schemaVersion"),
		Score:             hit.Score,
	}, true
}

func decodeTeam(hit model.RawHit) (model.TeamDocument, bool) {
	s, ok := parseSource(hit)
	if !ok {
		return model.TeamDocument{}, false
	}
	return model.TeamDocument{
		ID:            s.id(hit),
		Name:          s.text("name"),
		Description:   s.text("description"),
		LeaderID:      s.num("leaderId"),
		LeaderName:    s.text("leaderName"),
		MemberIDs:     s.ids("memberIds"),
		MemberNames:   s.list("memberNames"),
		Privacy:       s.text("privacy"),
		MemberCount:   s.count("memberCount"),
		ProjectCount:  s.count("projectCount"),
		CreatedAt:     s.date("createdAt"),
		SchemaVersion: s.count("schemaVersion"),
		Score:         hit.Score,
	}, true
}

// decodeHits decodes every hit, dropping the undecodable ones. The
// returned count is the number dropped.
func decodeHits[T any](hits []model.RawHit, decode func(model.RawHit) (T, bool)) ([]T, int) {
	out := make([]T, 0, len(hits))
	dropped := 0
	for _, hit := range hits {
		doc, ok := decode(hit)
		if !ok {
			dropped++
			continue
		}
		out = append(out, doc)
	}
	return out, dropped
}
