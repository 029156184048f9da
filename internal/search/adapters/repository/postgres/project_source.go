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

const projectSelect = `
	SELECT p.id, p.name, COALESCE(p.description, ''), p.status, p.private,
		p.owner_id, ou.first_name, ou.last_name,
		COALESCE(p.tags, '{}'), p.start_date, p.end_date,
		(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id),
		(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id AND t.completed),
		p.created_at, p.updated_at,
		ARRAY(SELECT m.user_id FROM project_members m
			WHERE m.project_id = p.id ORDER BY m.user_id),
		ARRAY(SELECT TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, ''))
			FROM project_members m JOIN users u ON u.id = m.user_id
			WHERE m.project_id = p.id ORDER BY m.user_id)
	FROM projects p
	LEFT JOIN users ou ON ou.id = p.owner_id`

type ProjectSource struct {
	db *database.DB
}

var _ repository.ProjectSource = (*ProjectSource)(nil)

func NewProjectSource(db *database.DB) *ProjectSource {
	return &ProjectSource{db: db}
}

func (s *ProjectSource) FindByID(ctx context.Context, id string) (*model.Project, error) {
	return findOne(ctx, s.db, projectSelect+` WHERE p.id = $1`, id, scanProject)
}

func (s *ProjectSource) FindAll(ctx context.Context) ([]*model.Project, error) {
	return findAll(ctx, s.db, projectSelect+` ORDER BY p.id`, scanProject)
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p                     model.Project
		ownerID               sql.NullInt64
		ownerFirst, ownerLast sql.NullString
		startDate, endDate    sql.NullTime
		tags, memberNames     []string
		memberIDs             []int64
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Status, &p.Private,
		&ownerID, &ownerFirst, &ownerLast,
		pq.Array(&tags), &startDate, &endDate,
		&p.TaskCount, &p.CompletedTaskCount,
		&p.CreatedAt, &p.UpdatedAt,
		pq.Array(&memberIDs), pq.Array(&memberNames),
	)
	if err != nil {
		return nil, err
	}
	if len(memberIDs) != len(memberNames) {
		return nil, fmt.Errorf("project %d: %d member ids but %d names", p.ID, len(memberIDs), len(memberNames))
	}

	if ownerID.Valid {
		p.Owner = &model.UserRef{ID: ownerID.Int64, Name: refName(ownerFirst, ownerLast)}
	}
	for i, id := range memberIDs {
		p.Members = append(p.Members, model.UserRef{ID: id, Name: memberNames[i]})
	}
	p.Tags = tags
	p.StartDate = database.NullTimePtr(startDate)
	p.EndDate = database.NullTimePtr(endDate)
	return &p, nil
}
