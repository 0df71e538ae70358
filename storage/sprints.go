package storage

import (
	"context"
	"encoding/json"

	"scrum-board/domain"
)

func (s *Storage) InsertSprint(ctx context.Context, sp domain.Sprint) error {
	payload, err := json.Marshal(newSprintEntity(sp))
	if err == nil {
		_, err = s.sprints.AddEntity(ctx, payload, nil)
	}
	return storeErr(err)
}

func (s *Storage) ListSprints(ctx context.Context, teamID string) ([]domain.Sprint, error) {
	sprints := []domain.Sprint{}
	err := list(ctx, s.sprints, partitionFilter(teamID), func(data []byte) error {
		var ent sprintEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		sprints = append(sprints, ent.sprint(""))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sprints, nil
}

// GetSprint returns the sprint with its ETag, or nil when missing.
func (s *Storage) GetSprint(ctx context.Context, teamID, id string) (*domain.Sprint, error) {
	resp, err := s.sprints.GetEntity(ctx, teamID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent sprintEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	sp := ent.sprint(string(resp.ETag))
	return &sp, nil
}

// UpdateSprint replaces the sprint if its ETag still matches.
func (s *Storage) UpdateSprint(ctx context.Context, sp domain.Sprint) error {
	payload, err := json.Marshal(newSprintEntity(sp))
	if err != nil {
		return err
	}
	return replaceEntity(ctx, s.sprints, payload, sp.ETag)
}

func (s *Storage) DeleteSprint(ctx context.Context, teamID, id string) error {
	return deleteEntity(ctx, s.sprints, teamID, id)
}
