package model

import "time"

// DocumentSchemaVersion is stamped on every document written to the index.
// Bump it whenever a field is added or its meaning changes so that a bulk
// reindex can be scheduled.
const DocumentSchemaVersion = 2

// Privacy values stored on project and team documents.
const (
	PrivacyPublic  = "PUBLIC"
	PrivacyPrivate = "PRIVATE"
)

// PrivacyOf maps a private flag to its indexed value.
func PrivacyOf(private bool) string {
	if private {
		return PrivacyPrivate
	}
	return PrivacyPublic
}

// TaskDocument is the indexed projection of a task. VisibleToUserIDs holds
// every principal allowed to see the task (creator and all assignees).
// EngagementScore is likes + 2*comments, stored so the engine can sort on it.
type TaskDocument struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	CreatorID        int64      `json:"creatorId"`
	CreatorName      string     `json:"creatorName"`
	AssigneeID       int64      `json:"assigneeId,omitempty"`
	AssigneeName     string     `json:"assigneeName,omitempty"`
	VisibleToUserIDs []int64    `json:"visibleToUserIds"`
	ProjectID        int64      `json:"projectId,omitempty"`
	ProjectName      string     `json:"projectName,omitempty"`
	Tags             []string   `json:"tags"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	Completed        bool       `json:"completed"`
	Pinned           bool       `json:"pinned"`
	LikeCount        int        `json:"likeCount"`
	CommentCount     int        `json:"commentCount"`
	EngagementScore  int        `json:"engagementScore"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	SchemaVersion    int        `json:"schemaVersion"`
	Score            float64    `json:"score,omitempty"`
}

// ProjectDocument is the indexed projection of a project. MemberIDs always
// includes the owner.
type ProjectDocument struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Status             string     `json:"status"`
	Privacy            string     `json:"privacy"`
	OwnerID            int64      `json:"ownerId"`
	OwnerName          string     `json:"ownerName"`
	MemberIDs          []int64    `json:"memberIds"`
	MemberNames        []string   `json:"memberNames"`
	Tags               []string   `json:"tags"`
	StartDate          *time.Time `json:"startDate,omitempty"`
	EndDate            *time.Time `json:"endDate,omitempty"`
	TaskCount          int        `json:"taskCount"`
	CompletedTaskCount int        `json:"completedTaskCount"`
	CreatedAt          time.Time  `json:"createdAt"`
	SchemaVersion      int        `json:"schemaVersion"`
	Score              float64    `json:"score,omitempty"`
}

// UserDocument is the indexed projection of a user profile.
type UserDocument struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	FullName          string    `json:"fullName"`
	Department        string    `json:"department,omitempty"`
	Skills            []string  `json:"skills"`
	Location          string    `json:"location,omitempty"`
	Searchable        bool      `json:"searchable"`
	ProfileVisibility string    `json:"profileVisibility"`
	IsDeactivated     bool      `json:"isDeactivated"`
	FollowerCount     int       `json:"followerCount"`
	FollowingCount    int       `json:"followingCount"`
	PostCount         int       `json:"postCount"`
	CreatedAt         time.Time `json:"createdAt"`
	SchemaVersion     int       `json:"schemaVersion"`
	Score             float64   `json:"score,omitempty"`
}

// TeamDocument is the indexed projection of a team. MemberIDs always
// includes the leader.
type TeamDocument struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	LeaderID      int64     `json:"leaderId"`
	LeaderName    string    `json:"leaderName"`
	MemberIDs     []int64   `json:"memberIds"`
	MemberNames   []string  `json:"memberNames"`
	Privacy       string    `json:"privacy"`
	MemberCount   int       `json:"memberCount"`
	ProjectCount  int       `json:"projectCount"`
	CreatedAt     time.Time `json:"createdAt"`
	SchemaVersion int       `json:"schemaVersion"`
	Score         float64   `json:"score,omitempty"`
}
