package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxConflictRetries = 5

// TeamStorage defines the persistence needed by TeamService.
type TeamStorage interface {
	InsertTeam(ctx context.Context, t Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	// UpdateTeam replaces the team guarded by t.ETag.
	UpdateTeam(ctx context.Context, t Team) error
	DeleteTeam(ctx context.Context, id string) error
	ListTeamIDsForUser(ctx context.Context, userID string) ([]string, error)
	AddMembership(ctx context.Context, userID, teamID string) error
	RemoveMembership(ctx context.Context, userID, teamID string) error
	InsertList(ctx context.Context, l List) error
	ListLists(ctx context.Context, teamID string) ([]List, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// TeamService manages teams, their membership and their lists.
type TeamService struct {
	st         TeamStorage
	activities ActivityLogger
	now        func() time.Time
	newID      func() string
}

func NewTeamService(st TeamStorage, activities ActivityLogger) TeamService {
	if activities == nil {
		activities = nopActivityLogger{}
	}
	return TeamService{st: st, activities: activities, now: time.Now, newID: uuid.NewString}
}

// CreateTeam stores a team with the creator as its only member and writes
// the default lists one by one.
func (s TeamService) CreateTeam(ctx context.Context, actor Actor, name string) (Team, []List, error) {
	name, err := validateTeamName(name)
	if err != nil {
		return Team{}, nil, err
	}
	now := s.now().UTC()
	t := Team{
		ID:        s.newID(),
		Name:      name,
		CreatedBy: actor.ID,
		Members:   []string{actor.ID},
		CreatedAt: now,
	}
	if actor.Email != "" {
		t.MemberEmails = []string{strings.ToLower(actor.Email)}
	}
	if err := s.st.InsertTeam(ctx, t); err != nil {
		return Team{}, nil, fmt.Errorf("insert team: %w", err)
	}
	if err := s.st.AddMembership(ctx, actor.ID, t.ID); err != nil {
		return Team{}, nil, fmt.Errorf("add membership: %w", err)
	}
	lists := make([]List, 0, len(DefaultListNames))
	for i, ln := range DefaultListNames {
		l := List{ID: s.newID(), TeamID: t.ID, Name: ln, Order: i, CreatedAt: now}
		if err := s.st.InsertList(ctx, l); err != nil {
			return t, lists, fmt.Errorf("insert list %q: %w", ln, err)
		}
		lists = append(lists, l)
	}
	s.activities.Log(ctx, newActivity(t.ID, ActivityTeamCreated,
		fmt.Sprintf("%s created team %q", actor.DisplayName(), t.Name), actor.ID))
	return t, lists, nil
}

// TeamsFor returns the teams userID belongs to, oldest first.
func (s TeamService) TeamsFor(ctx context.Context, userID string) ([]Team, error) {
	ids, err := s.st.ListTeamIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	teams := make([]Team, 0, len(ids))
	for _, id := range ids {
		t, err := s.st.GetTeam(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil || !t.HasMember(userID) {
			log.WithFields(log.Fields{"team": id, "user": userID}).Debug("skipping stale membership")
			continue
		}
		teams = append(teams, *t)
	}
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].CreatedAt.Before(teams[j].CreatedAt) })
	return teams, nil
}

// Team loads a team by id.
func (s TeamService) Team(ctx context.Context, id string) (Team, error) {
	t, err := s.st.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if t == nil {
		return Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return *t, nil
}

// Lists returns the team's lists left to right.
func (s TeamService) Lists(ctx context.Context, teamID string) ([]List, error) {
	lists, err := s.st.ListLists(ctx, teamID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lists, func(i, j int) bool { return lists[i].Order < lists[j].Order })
	return lists, nil
}

// RenameTeam changes the display name.
func (s TeamService) RenameTeam(ctx context.Context, actor Actor, id, name string) (Team, error) {
	name, err := validateTeamName(name)
	if err != nil {
		return Team{}, err
	}
	t, _, err := s.mutate(ctx, id, func(t Team) (Team, bool, error) {
		if t.Name == name {
			return t, false, nil
		}
		t.Name = name
		return t, true, nil
	})
	return t, err
}

// InviteMember adds the user registered under email. Inviting an existing
// member is a no-op.
func (s TeamService) InviteMember(ctx context.Context, actor Actor, teamID, email string) (Team, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Team{}, fmt.Errorf("%w: email is required", ErrValidation)
	}
	u, err := s.st.FindUserByEmail(ctx, email)
	if err != nil {
		return Team{}, err
	}
	if u == nil {
		return Team{}, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	t, changed, err := s.mutate(ctx, teamID, func(t Team) (Team, bool, error) {
		nt, changed := t.WithMember(u.ID, email)
		return nt, changed, nil
	})
	if err != nil || !changed {
		return t, err
	}
	if err := s.st.AddMembership(ctx, u.ID, teamID); err != nil {
		return t, fmt.Errorf("add membership: %w", err)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityMemberAdded,
		fmt.Sprintf("%s added %s to the team", actor.DisplayName(), email), actor.ID))
	return t, nil
}

// LeaveTeam removes the actor from the team.
func (s TeamService) LeaveTeam(ctx context.Context, actor Actor, teamID string) error {
	_, _, err := s.mutate(ctx, teamID, func(t Team) (Team, bool, error) {
		nt, err := t.WithoutMember(actor.ID, actor.Email)
		if err != nil {
			return t, false, err
		}
		return nt, true, nil
	})
	if err != nil {
		return err
	}
	if err := s.st.RemoveMembership(ctx, actor.ID, teamID); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityMemberRemoved,
		fmt.Sprintf("%s left the team", actor.DisplayName()), actor.ID))
	return nil
}

// DeleteTeam removes the team document and its membership index. Lists,
// cards and sprints of the team are left in place.
func (s TeamService) DeleteTeam(ctx context.Context, actor Actor, teamID string) error {
	t, err := s.Team(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.st.DeleteTeam(ctx, teamID); err != nil {
		return err
	}
	for _, m := range t.Members {
		if err := s.st.RemoveMembership(ctx, m, teamID); err != nil {
			log.WithError(err).WithFields(log.Fields{"team": teamID, "user": m}).Error("failed to remove membership of deleted team")
		}
	}
	return nil
}

func (s TeamService) mutate(ctx context.Context, id string, fn func(Team) (Team, bool, error)) (Team, bool, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, err := s.Team(ctx, id)
		if err != nil {
			return Team{}, false, err
		}
		nt, changed, err := fn(t)
		if err != nil || !changed {
			return t, false, err
		}
		if err := s.st.UpdateTeam(ctx, nt); err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				log.WithFields(log.Fields{"team": id, "attempt": attempt}).Debug("team update conflict, retrying")
				continue
			}
			return t, false, err
		}
		return nt, true, nil
	}
	return Team{}, false, fmt.Errorf("team %s: %w", id, ErrConcurrencyConflict)
}
