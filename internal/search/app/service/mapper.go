package service

import (
	"fmt"
	"slices"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

// The mappers resolve every authorization field at index time. A document
// that lists too few principals hides data; one that lists too many leaks
// it, so missing owners are rejected instead of indexed with a zero id.

// MapTask builds the document for a task. VisibleToUserIDs is the creator
// plus every assignee.
func MapTask(t *model.Task) (*model.TaskDocument, error) {
	if t == nil || t.ID <= 0 {
		return nil, fmt.Errorf("%w: task without id", ErrMapping)
	}
	if t.Creator == nil || t.Creator.ID <= 0 {
		return nil, fmt.Errorf("%w: task %d has no creator", ErrMapping, t.ID)
	}

	visible := []int64{t.Creator.ID}
	for _, a := range t.Assignees {
		if a.ID <= 0 {
			return nil, fmt.Errorf("%w: task %d has an assignee without id", ErrMapping, t.ID)
		}
		visible = append(visible, a.ID)
	}

	doc := &model.TaskDocument{
		ID:               events.FormatID(t.ID),
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		Priority:         t.Priority,
		CreatorID:        t.Creator.ID,
		CreatorName:      t.Creator.Name,
		VisibleToUserIDs: uniqueIDs(visible),
		Tags:             nonNil(t.Tags),
		DueDate:          t.DueDate,
		Completed:        t.Completed,
		Pinned:           t.Pinned,
		LikeCount:        t.LikeCount,
		CommentCount:     t.CommentCount,
		EngagementScore:  EngagementScore(t.LikeCount, t.CommentCount),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		SchemaVersion:    model.DocumentSchemaVersion,
	}
	if a := t.PrimaryAssignee(); a != nil {
		doc.AssigneeID = a.ID
		doc.AssigneeName = a.Name
	}
	if t.Project != nil {
		doc.ProjectID = t.Project.ID
		doc.ProjectName = t.Project.Name
	}
	return doc, nil
}

// MapProject builds the document for a project. The owner is always a
// member.
func MapProject(p *model.Project) (*model.ProjectDocument, error) {
	if p == nil || p.ID <= 0 {
		return nil, fmt.Errorf("%w: project without id", ErrMapping)
	}
	if p.Owner == nil || p.Owner.ID <= 0 {
		return nil, fmt.Errorf("%w: project %d has no owner", ErrMapping, p.ID)
	}
	ids, names, err := members(*p.Owner, p.Members)
	if err != nil {
		return nil, fmt.Errorf("%w: project %d: %v", ErrMapping, p.ID, err)
	}

	return &model.ProjectDocument{
		ID:                 events.FormatID(p.ID),
		Name:               p.Name,
		Description:        p.Description,
		Status:             p.Status,
		Privacy:            model.PrivacyOf(p.Private),
		OwnerID:            p.Owner.ID,
		OwnerName:          p.Owner.Name,
		MemberIDs:          ids,
		MemberNames:        names,
		Tags:               nonNil(p.Tags),
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		TaskCount:          p.TaskCount,
		CompletedTaskCount: p.CompletedTaskCount,
		CreatedAt:          p.CreatedAt,
		SchemaVersion:      model.DocumentSchemaVersion,
	}, nil
}

// MapUser builds the document for a user profile. An unset visibility is
// indexed as PRIVATE.
func MapUser(u *model.User) (*model.UserDocument, error) {
	if u == nil || u.ID <= 0 {
		return nil, fmt.Errorf("%w: user without id", ErrMapping)
	}
	visibility := u.ProfileVisibility
	switch visibility {
	case model.ProfilePublic, model.ProfileTeam, model.ProfilePrivate:
	default:
		visibility = model.ProfilePrivate
	}

	return &model.UserDocument{
		ID:                events.FormatID(u.ID),
		Email:             u.Email,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		FullName:          u.FullName(),
		Department:        u.Department,
		Skills:            nonNil(u.Skills),
		Location:          u.Location,
		Searchable:        u.Searchable,
		ProfileVisibility: string(visibility),
		IsDeactivated:     u.Deactivated,
		FollowerCount:     u.FollowerCount,
		FollowingCount:    u.FollowingCount,
		PostCount:         u.PostCount,
		CreatedAt:         u.CreatedAt,
		SchemaVersion:     model.DocumentSchemaVersion,
	}, nil
}

// MapTeam builds the document for a team. The leader is always a member.
func MapTeam(t *model.Team) (*model.TeamDocument, error) {
	if t == nil || t.ID <= 0 {
		return nil, fmt.Errorf("%w: team without id", ErrMapping)
	}
	if t.Leader == nil || t.Leader.ID <= 0 {
		return nil, fmt.Errorf("%w: team %d has no leader", ErrMapping, t.ID)
	}
	ids, names, err := members(*t.Leader, t.Members)
	if err != nil {
		return nil, fmt.Errorf("%w: team %d: %v", ErrMapping, t.ID, err)
	}

	return &model.TeamDocument{
		ID:            events.FormatID(t.ID),
		Name:          t.Name,
		Description:   t.Description,
		LeaderID:      t.Leader.ID,
		LeaderName:    t.Leader.Name,
		MemberIDs:     ids,
		MemberNames:   names,
		Privacy:       model.PrivacyOf(t.Private),
		MemberCount:   len(ids),
		ProjectCount:  t.ProjectCount,
		CreatedAt:     t.CreatedAt,
		SchemaVersion: model.DocumentSchemaVersion,
	}, nil
}

// EngagementScore weights comments twice as much as likes.
func EngagementScore(likes, comments int) int {
	return likes + 2*comments
}

// members returns sorted unique ids with names in matching order, head
// included.
func members(head model.UserRef, rest []model.UserRef) ([]int64, []string, error) {
	byID := map[int64]string{head.ID: head.Name}
	for _, m := range rest {
		if m.ID <= 0 {
			return nil, nil, fmt.Errorf("member without id")
		}
		if _, seen := byID[m.ID]; !seen {
			byID[m.ID] = m.Name
		}
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = byID[id]
	}
	return ids, names, nil
}

func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
