package api

import (
	"context"

	"scrum-board/domain"
)

// Teams covers team, membership and list operations.
type Teams interface {
	CreateTeam(ctx context.Context, actor domain.Actor, name string) (domain.Team, []domain.List, error)
	TeamsFor(ctx context.Context, userID string) ([]domain.Team, error)
	Team(ctx context.Context, id string) (domain.Team, error)
	Lists(ctx context.Context, teamID string) ([]domain.List, error)
	RenameTeam(ctx context.Context, actor domain.Actor, id, name string) (domain.Team, error)
	InviteMember(ctx context.Context, actor domain.Actor, teamID, email string) (domain.Team, error)
	LeaveTeam(ctx context.Context, actor domain.Actor, teamID string) error
	DeleteTeam(ctx context.Context, actor domain.Actor, teamID string) error
}

// Cards covers the board and the reordering engine.
type Cards interface {
	Board(ctx context.Context, teamID string) (domain.Board, error)
	CreateCard(ctx context.Context, actor domain.Actor, teamID string, in domain.NewCard) (domain.Card, error)
	EditCard(ctx context.Context, actor domain.Actor, teamID, cardID string, edit domain.CardEdit) (domain.Card, error)
	DeleteCard(ctx context.Context, actor domain.Actor, teamID, cardID string) error
	MoveCard(ctx context.Context, actor domain.Actor, teamID string, mv domain.MoveDescriptor) (domain.MoveResult, error)
}

type Comments interface {
	AddComment(ctx context.Context, actor domain.Actor, teamID, cardID, text string) (domain.Comment, error)
	Comments(ctx context.Context, cardID string) ([]domain.Comment, error)
	DeleteComment(ctx context.Context, actor domain.Actor, cardID, commentID string) error
}

type Sprints interface {
	CreateSprint(ctx context.Context, actor domain.Actor, teamID string, in domain.NewSprint) (domain.Sprint, error)
	Sprints(ctx context.Context, teamID string) ([]domain.Sprint, error)
	StartSprint(ctx context.Context, actor domain.Actor, teamID, id string) (domain.Sprint, error)
	CompleteSprint(ctx context.Context, actor domain.Actor, teamID, id string) (domain.Sprint, error)
	DeleteSprint(ctx context.Context, actor domain.Actor, teamID, id string) error
}

type Profiles interface {
	Profile(ctx context.Context, actor domain.Actor) (domain.User, error)
	UpdateProfile(ctx context.Context, actor domain.Actor, edit domain.ProfileEdit) (domain.User, error)
}

// Feed reads a team's activity feed.
type Feed interface {
	ListActivities(ctx context.Context, teamID string, limit int) ([]domain.Activity, error)
}

// Stream hands out live board frames for a team.
type Stream interface {
	Subscribe(ctx context.Context, teamID string) (<-chan []byte, []byte, func(), error)
}

// Services bundles everything the routes need.
type Services struct {
	Teams    Teams
	Cards    Cards
	Comments Comments
	Sprints  Sprints
	Profiles Profiles
	Feed     Feed
	Stream   Stream
}

// Authenticator is implemented by types able to resolve the caller from headers.
type Authenticator interface {
	ActorFromAuthHeader(string) (domain.Actor, error)
}

// Deduper prevents a move from being applied twice.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the move fails.
	Remove(ctx context.Context, userID, key string) error
}

// ActivityQueue is the producer side of the activity queue.
type ActivityQueue interface {
	EnqueueActivity(ctx context.Context, a domain.Activity) error
}
