package model

import "time"

// The types below are read models of the system of record. They are loaded
// by the event consumer and never written back.

// UserRef is a denormalized reference to a user.
type UserRef struct {
	ID   int64
	Name string
}

// ProjectRef is a denormalized reference to a project.
type ProjectRef struct {
	ID   int64
	Name string
}

// Task is the authoritative task state.
type Task struct {
	ID           int64
	Title        string
	Description  string
	Status       string
	Priority     string
	Creator      *UserRef
	Assignees    []UserRef
	Project      *ProjectRef
	Tags         []string
	DueDate      *time.Time
	Completed    bool
	Pinned       bool
	LikeCount    int
	CommentCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PrimaryAssignee returns the first assignee, if any.
func (t *Task) PrimaryAssignee() *UserRef {
	if len(t.Assignees) == 0 {
		return nil
	}
	return &t.Assignees[0]
}

// Project is the authoritative project state.
type Project struct {
	ID                 int64
	Name               string
	Description        string
	Status             string
	Private            bool
	Owner              *UserRef
	Members            []UserRef
	Tags               []string
	StartDate          *time.Time
	EndDate            *time.Time
	TaskCount          int
	CompletedTaskCount int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProfileVisibility controls who may find a user profile.
type ProfileVisibility string

const (
	ProfilePublic  ProfileVisibility = "PUBLIC"
	ProfileTeam    ProfileVisibility = "TEAM"
	ProfilePrivate ProfileVisibility = "PRIVATE"
)

// User is the authoritative user profile state.
type User struct {
	ID                int64
	Email             string
	Username          string
	FirstName         string
	LastName          string
	Department        string
	Skills            []string
	Location          string
	Searchable        bool
	ProfileVisibility ProfileVisibility
	Deactivated       bool
	FollowerCount     int
	FollowingCount    int
	PostCount         int
	CreatedAt         time.Time
}

// FullName joins first and last name, skipping empty parts.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Team is the authoritative team state.
type Team struct {
	ID           int64
	Name         string
	Description  string
	Leader       *UserRef
	Members      []UserRef
	Private      bool
	ProjectCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
