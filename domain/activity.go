package domain

import (
	"context"
	"time"
)

// Activity types recorded in a team's feed.
const (
	ActivityTeamCreated     = "team_created"
	ActivityCardCreated     = "card_created"
	ActivityCardMoved       = "card_moved"
	ActivityCardDeleted     = "card_deleted"
	ActivityCardUpdated     = "card_updated"
	ActivityMemberAdded     = "member_added"
	ActivityMemberRemoved   = "member_removed"
	ActivitySprintCreated   = "sprint_created"
	ActivitySprintStarted   = "sprint_started"
	ActivitySprintCompleted = "sprint_completed"
	ActivitySprintDeleted   = "sprint_deleted"
	ActivityCommentAdded    = "comment_added"
)

// Activity is an append-only feed entry. CreatedAt is assigned when the
// entry is persisted, not by the caller.
type Activity struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"teamId"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActivityLogger records feed entries. Implementations must not fail the
// calling operation; errors are reported through logging only.
type ActivityLogger interface {
	Log(ctx context.Context, a Activity)
}

type nopActivityLogger struct{}

func (nopActivityLogger) Log(context.Context, Activity) {}

func newActivity(teamID, kind, description, userID string) Activity {
	return Activity{TeamID: teamID, Type: kind, Description: description, UserID: userID}
}
