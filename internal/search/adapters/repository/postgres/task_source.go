package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/taskflow-hq/taskflow/internal/platform/database"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

const taskSelect = `
	SELECT t.id, t.title, COALESCE(t.description, ''), t.status, t.priority,
		t.creator_id, cu.first_name, cu.last_name,
		t.project_id, p.name,
		COALESCE(t.tags, '{}'), t.due_date, t.completed, t.pinned,
		t.like_count, t.comment_count, t.created_at, t.updated_at,
		ARRAY(SELECT a.user_id FROM task_assignees a
			WHERE a.task_id = t.id ORDER BY a.position),
		ARRAY(SELECT TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, ''))
			FROM task_assignees a JOIN users u ON u.id = a.user_id
			WHERE a.task_id = t.id ORDER BY a.position)
	FROM tasks t
	LEFT JOIN users cu ON cu.id = t.creator_id
	LEFT JOIN projects p ON p.id = t.project_id`

type TaskSource struct {
	db *database.DB
}

var _ repository.TaskSource = (*TaskSource)(nil)

func NewTaskSource(db *database.DB) *TaskSource {
	return &TaskSource{db: db}
}

func (s *TaskSource) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return findOne(ctx, s.db, taskSelect+` WHERE t.id = $1`, id, scanTask)
}

func (s *TaskSource) FindAll(ctx context.Context) ([]*model.Task, error) {
	return findAll(ctx, s.db, taskSelect+` ORDER BY t.id`, scanTask)
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t                                      model.Task
		creatorID, projectID                   sql.NullInt64
		creatorFirst, creatorLast, projectName sql.NullString
		dueDate                                sql.NullTime
		tags, assigneeNames                    []string
		assigneeIDs                            []int64
	)
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&creatorID, &creatorFirst, &creatorLast,
		&projectID, &projectName,
		pq.Array(&tags), &dueDate, &t.Completed, &t.Pinned,
		&t.LikeCount, &t.CommentCount, &t.CreatedAt, &t.UpdatedAt,
		pq.Array(&assigneeIDs), pq.Array(&assigneeNames),
	)
	if err != nil {
		return nil, err
	}
	if len(assigneeIDs) != len(assigneeNames) {
		return nil, fmt.Errorf("task %d: %d assignee ids but %d names", t.ID, len(assigneeIDs), len(assigneeNames))
	}

	if creatorID.Valid {
		t.Creator = &model.UserRef{ID: creatorID.Int64, Name: refName(creatorFirst, creatorLast)}
	}
	if projectID.Valid {
		t.Project = &model.ProjectRef{ID: projectID.Int64, Name: projectName.String}
	}
	for i, id := range assigneeIDs {
		t.Assignees = append(t.Assignees, model.UserRef{ID: id, Name: assigneeNames[i]})
	}
	t.Tags = tags
	t.DueDate = database.NullTimePtr(dueDate)
	return &t, nil
}
