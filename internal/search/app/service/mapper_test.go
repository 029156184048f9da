package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

func TestMapTask(t *testing.T) {
	task := newTask(7, "Write report", 5, 9, 5, 3, 9)
	task.Project = &model.ProjectRef{ID: 11, Name: "Apollo"}
	task.LikeCount, task.CommentCount = 4, 3

	doc, err := MapTask(task)
	require.NoError(t, err)
	assert.Equal(t, "7", doc.ID)
	assert.Equal(t, []int64{3, 5, 9}, doc.VisibleToUserIDs)
	assert.Equal(t, int64(9), doc.AssigneeID)
	assert.Equal(t, int64(11), doc.ProjectID)
	assert.Equal(t, "Apollo", doc.ProjectName)
	assert.Equal(t, 10, doc.EngagementScore)
	assert.Equal(t, []string{}, doc.Tags)
	assert.Equal(t, model.DocumentSchemaVersion, doc.SchemaVersion)
}

func TestMapTaskRejectsMissingPrincipals(t *testing.T) {
	tests := []struct {
		name string
		task *model.Task
	}{
		{name: "nil", task: nil},
		{name: "no id", task: &model.Task{Creator: ref(1, "a")}},
		{name: "no creator", task: &model.Task{ID: 1}},
		{name: "creator without id", task: &model.Task{ID: 1, Creator: ref(0, "a")}},
		{name: "assignee without id", task: &model.Task{ID: 1, Creator: ref(1, "a"), Assignees: []model.UserRef{{Name: "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapTask(tt.task)
			assert.ErrorIs(t, err, ErrMapping)
		})
	}
}

func TestMapProjectIncludesOwner(t *testing.T) {
	doc, err := MapProject(&model.Project{
		ID:      3,
		Name:    "Apollo",
		Private: true,
		Owner:   ref(8, "Olga"),
		Members: []model.UserRef{{ID: 4, Name: "Dan"}, {ID: 8, Name: "Olga"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 8}, doc.MemberIDs)
	assert.Equal(t, []string{"Dan", "Olga"}, doc.MemberNames)
	assert.Equal(t, model.PrivacyPrivate, doc.Privacy)

	_, err = MapProject(&model.Project{ID: 3})
	assert.ErrorIs(t, err, ErrMapping)
}

func TestMapUser(t *testing.T) {
	doc, err := MapUser(&model.User{ID: 2, FirstName: "Lin", LastName: "Yu", Searchable: true})
	require.NoError(t, err)
	assert.Equal(t, "Lin Yu", doc.FullName)
	assert.Equal(t, string(model.ProfilePrivate), doc.ProfileVisibility)
	assert.True(t, doc.Searchable)
}

func TestMapTeamCountsLeader(t *testing.T) {
	doc, err := MapTeam(&model.Team{
		ID:      5,
		Name:    "Platform",
		Leader:  ref(1, "Lee"),
		Members: []model.UserRef{{ID: 2, Name: "Sam"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, doc.MemberIDs)
	assert.Equal(t, 2, doc.MemberCount)
	assert.Equal(t, model.PrivacyPublic, doc.Privacy)
}
