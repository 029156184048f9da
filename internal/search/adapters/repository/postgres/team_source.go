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

const teamSelect = `
	SELECT tm.id, tm.name, COALESCE(tm.description, ''), tm.private,
		tm.leader_id, lu.first_name, lu.last_name,
		(SELECT COUNT(*) FROM team_projects tp WHERE tp.team_id = tm.id),
		tm.created_at, tm.updated_at,
		ARRAY(SELECT m.user_id FROM team_members m
			WHERE m.team_id = tm.id ORDER BY m.user_id),
		ARRAY(SELECT TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, ''))
			FROM team_members m JOIN users u ON u.id = m.user_id
			WHERE m.team_id = tm.id ORDER BY m.user_id)
	FROM teams tm
	LEFT JOIN users lu ON lu.id = tm.leader_id`

type TeamSource struct {
	db *database.DB
}

var _ repository.TeamSource = (*TeamSource)(nil)

func NewTeamSource(db *database.DB) *TeamSource {
	return &TeamSource{db: db}
}

func (s *TeamSource) FindByID(ctx context.Context, id string) (*model.Team, error) {
	return findOne(ctx, s.db, teamSelect+` WHERE tm.id = $1`, id, scanTeam)
}

func (s *TeamSource) FindAll(ctx context.Context) ([]*model.Team, error) {
	return findAll(ctx, s.db, teamSelect+` ORDER BY tm.id`, scanTeam)
}

func scanTeam(row rowScanner) (*model.Team, error) {
	var (
		t                       model.Team
		leaderID                sql.NullInt64
		leaderFirst, leaderLast sql.NullString
		memberNames             []string
		memberIDs               []int64
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Private,
		&leaderID, &leaderFirst, &leaderLast,
		&t.ProjectCount,
		&t.CreatedAt, &t.UpdatedAt,
		pq.Array(&memberIDs), pq.Array(&memberNames),
	)
	if err != nil {
		return nil, err
	}
	if len(memberIDs) != len(memberNames) {
		return nil, fmt.Errorf("team %d: %d member ids but %d names", t.ID, len(memberIDs), len(memberNames))
	}

	if leaderID.Valid {
		t.Leader = &model.UserRef{ID: leaderID.Int64, Name: refName(leaderFirst, leaderLast)}
	}
	for i, id := range memberIDs {
		t.Members = append(t.Members, model.UserRef{ID: id, Name: memberNames[i]})
	}
	return &t, nil
}
