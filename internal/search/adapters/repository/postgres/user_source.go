package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/taskflow-hq/taskflow/internal/platform/database"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

const userSelect = `
	SELECT u.id, u.email, u.username,
		COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		COALESCE(u.department, ''), COALESCE(u.skills, '{}'), COALESCE(u.location, ''),
		u.searchable, u.profile_visibility, u.deactivated,
		(SELECT COUNT(*) FROM user_follows f WHERE f.followee_id = u.id),
		(SELECT COUNT(*) FROM user_follows f WHERE f.follower_id = u.id),
		(SELECT COUNT(*) FROM posts po WHERE po.author_id = u.id),
		u.created_at
	FROM users u`

type UserSource struct {
	db *database.DB
}

var _ repository.UserSource = (*UserSource)(nil)

func NewUserSource(db *database.DB) *UserSource {
	return &UserSource{db: db}
}

func (s *UserSource) FindByID(ctx context.Context, id string) (*model.User, error) {
	return findOne(ctx, s.db, userSelect+` WHERE u.id = $1`, id, scanUser)
}

func (s *UserSource) FindAll(ctx context.Context) ([]*model.User, error) {
	return findAll(ctx, s.db, userSelect+` ORDER BY u.id`, scanUser)
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u          model.User
		skills     []string
		visibility string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username,
		&u.FirstName, &u.LastName,
		&u.Department, pq.Array(&skills), &u.Location,
		&u.Searchable, &visibility, &u.Deactivated,
		&u.FollowerCount, &u.FollowingCount, &u.PostCount,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Skills = skills
	u.ProfileVisibility = model.ProfileVisibility(visibility)
	return &u, nil
}
