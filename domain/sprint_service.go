package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SprintStorage defines the persistence needed by SprintService.
type SprintStorage interface {
	InsertSprint(ctx context.Context, s Sprint) error
	ListSprints(ctx context.Context, teamID string) ([]Sprint, error)
	GetSprint(ctx context.Context, teamID, id string) (*Sprint, error)
	// UpdateSprint replaces the sprint guarded by its ETag.
	UpdateSprint(ctx context.Context, s Sprint) error
	DeleteSprint(ctx context.Context, teamID, id string) error
}

// SprintService manages a team's sprints. Only one sprint per team may be
// active; the check is made here, the store does not enforce it.
type SprintService struct {
	st         SprintStorage
	activities ActivityLogger
	now        func() time.Time
	newID      func() string
}

func NewSprintService(st SprintStorage, activities ActivityLogger) SprintService {
	if activities == nil {
		activities = nopActivityLogger{}
	}
	return SprintService{st: st, activities: activities, now: time.Now, newID: uuid.NewString}
}

// CreateSprint stores a planned sprint.
func (s SprintService) CreateSprint(ctx context.Context, actor Actor, teamID string, in NewSprint) (Sprint, error) {
	in, err := in.validate()
	if err != nil {
		return Sprint{}, err
	}
	sp := Sprint{
		ID:        s.newID(),
		TeamID:    teamID,
		Name:      in.Name,
		Goal:      in.Goal,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    SprintPlanned,
		CreatedAt: s.now().UTC(),
	}
	if err := s.st.InsertSprint(ctx, sp); err != nil {
		return Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivitySprintCreated,
		fmt.Sprintf("%s planned sprint %q", actor.DisplayName(), sp.Name), actor.ID))
	return sp, nil
}

// Sprints lists the team's sprints, latest start date first.
func (s SprintService) Sprints(ctx context.Context, teamID string) ([]Sprint, error) {
	sprints, err := s.st.ListSprints(ctx, teamID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sprints, func(i, j int) bool { return sprints[i].StartDate.After(sprints[j].StartDate) })
	return sprints, nil
}

// ActiveSprint returns the team's active sprint, if any.
func (s SprintService) ActiveSprint(ctx context.Context, teamID string) (*Sprint, error) {
	sprints, err := s.st.ListSprints(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for i := range sprints {
		if sprints[i].Status == SprintActive {
			return &sprints[i], nil
		}
	}
	return nil, nil
}

// StartSprint activates a planned sprint when no other sprint is active.
func (s SprintService) StartSprint(ctx context.Context, actor Actor, teamID, id string) (Sprint, error) {
	active, err := s.ActiveSprint(ctx, teamID)
	if err != nil {
		return Sprint{}, err
	}
	if active != nil {
		return Sprint{}, fmt.Errorf("sprint %s is active: %w", active.ID, ErrActiveSprintExists)
	}
	sp, err := s.transition(ctx, teamID, id, SprintPlanned, SprintActive)
	if err != nil {
		return Sprint{}, err
	}
	s.activities.Log(ctx, newActivity(teamID, ActivitySprintStarted,
		fmt.Sprintf("%s started sprint %q", actor.DisplayName(), sp.Name), actor.ID))
	return sp, nil
}

// CompleteSprint finishes the active sprint.
func (s SprintService) CompleteSprint(ctx context.Context, actor Actor, teamID, id string) (Sprint, error) {
	sp, err := s.transition(ctx, teamID, id, SprintActive, SprintCompleted)
	if err != nil {
		return Sprint{}, err
	}
	s.activities.Log(ctx, newActivity(teamID, ActivitySprintCompleted,
		fmt.Sprintf("%s completed sprint %q", actor.DisplayName(), sp.Name), actor.ID))
	return sp, nil
}

// DeleteSprint removes a sprint in any state.
func (s SprintService) DeleteSprint(ctx context.Context, actor Actor, teamID, id string) error {
	sp, err := s.st.GetSprint(ctx, teamID, id)
	if err != nil {
		return err
	}
	if sp == nil {
		return fmt.Errorf("sprint %s: %w", id, ErrNotFound)
	}
	if err := s.st.DeleteSprint(ctx, teamID, id); err != nil {
		return err
	}
	s.activities.Log(ctx, newActivity(teamID, ActivitySprintDeleted,
		fmt.Sprintf("%s deleted sprint %q", actor.DisplayName(), sp.Name), actor.ID))
	return nil
}

func (s SprintService) transition(ctx context.Context, teamID, id string, from, to SprintStatus) (Sprint, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		sp, err := s.st.GetSprint(ctx, teamID, id)
		if err != nil {
			return Sprint{}, err
		}
		if sp == nil {
			return Sprint{}, fmt.Errorf("sprint %s: %w", id, ErrNotFound)
		}
		if sp.Status != from {
			return Sprint{}, fmt.Errorf("sprint %s is %s, not %s: %w", id, sp.Status, from, ErrInvalidSprintTransition)
		}
		now := s.now().UTC()
		sp.Status = to
		switch to {
		case SprintActive:
			sp.StartedAt = &now
		case SprintCompleted:
			sp.CompletedAt = &now
		}
		if err := s.st.UpdateSprint(ctx, *sp); err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				continue
			}
			return Sprint{}, err
		}
		return *sp, nil
	}
	return Sprint{}, fmt.Errorf("sprint %s: %w", id, ErrConcurrencyConflict)
}
