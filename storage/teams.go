package storage

import (
	"context"
	"encoding/json"

	"scrum-board/domain"
)

// InsertTeam adds a new team document.
func (s *Storage) InsertTeam(ctx context.Context, t domain.Team) error {
	payload, err := json.Marshal(newTeamEntity(t))
	if err == nil {
		_, err = s.teams.AddEntity(ctx, payload, nil)
	}
	return storeErr(err)
}

// GetTeam returns the team or nil when it does not exist.
func (s *Storage) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	resp, err := s.teams.GetEntity(ctx, teamPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent teamEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	t := ent.team(string(resp.ETag))
	return &t, nil
}

// UpdateTeam replaces the team document if t.ETag still matches.
func (s *Storage) UpdateTeam(ctx context.Context, t domain.Team) error {
	payload, err := json.Marshal(newTeamEntity(t))
	if err != nil {
		return err
	}
	return replaceEntity(ctx, s.teams, payload, t.ETag)
}

func (s *Storage) DeleteTeam(ctx context.Context, id string) error {
	return deleteEntity(ctx, s.teams, teamPartition, id)
}

// ListTeamIDsForUser reads the membership index of a user.
func (s *Storage) ListTeamIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := list(ctx, s.memberships, partitionFilter(userID), func(data []byte) error {
		var ent membershipEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		ids = append(ids, ent.RowKey)
		return nil
	})
	return ids, err
}

func (s *Storage) AddMembership(ctx context.Context, userID, teamID string) error {
	payload, err := json.Marshal(membershipEntity{
		entity:       entity{PartitionKey: userID, RowKey: teamID},
		JoinedAt:     millis(s.now()),
		JoinedAtType: edmInt64,
	})
	if err == nil {
		_, err = s.memberships.UpsertEntity(ctx, payload, nil)
	}
	return err
}

func (s *Storage) RemoveMembership(ctx context.Context, userID, teamID string) error {
	return deleteEntity(ctx, s.memberships, userID, teamID)
}

func (s *Storage) InsertList(ctx context.Context, l domain.List) error {
	payload, err := json.Marshal(newListEntity(l))
	if err == nil {
		_, err = s.lists.AddEntity(ctx, payload, nil)
	}
	return storeErr(err)
}

// ListLists returns the lists of a team in storage order.
func (s *Storage) ListLists(ctx context.Context, teamID string) ([]domain.List, error) {
	lists := []domain.List{}
	err := list(ctx, s.lists, partitionFilter(teamID), func(data []byte) error {
		var ent listEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		lists = append(lists, ent.list())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// GetUser returns the profile or nil when none was saved.
func (s *Storage) GetUser(ctx context.Context, id string) (*domain.User, error) {
	resp, err := s.users.GetEntity(ctx, id, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	u := ent.user()
	return &u, nil
}

// UpsertUser creates or replaces a profile.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(newUserEntity(u))
	if err == nil {
		_, err = s.users.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// FindUserByEmail looks a profile up by its lower-cased email.
func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var found *domain.User
	err := list(ctx, s.users, "Email eq "+quote(email), func(data []byte) error {
		if found != nil {
			return nil
		}
		var ent userEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		u := ent.user()
		found = &u
		return nil
	})
	return found, err
}
