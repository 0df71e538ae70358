package domain

import (
	"context"
	"time"
)

// UserStorage defines the persistence needed by UserService.
type UserStorage interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, u User) error
}

// UserService reads and edits profile documents.
type UserService struct {
	st  UserStorage
	now func() time.Time
}

func NewUserService(st UserStorage) UserService { return UserService{st: st, now: time.Now} }

// Profile returns the actor's profile, seeded from token claims when no
// document exists yet.
func (s UserService) Profile(ctx context.Context, actor Actor) (User, error) {
	u, err := s.st.GetUser(ctx, actor.ID)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{ID: actor.ID, Name: actor.Name, Email: actor.Email}, nil
	}
	return *u, nil
}

// UpdateProfile merges edit into the actor's profile.
func (s UserService) UpdateProfile(ctx context.Context, actor Actor, edit ProfileEdit) (User, error) {
	u, err := s.Profile(ctx, actor)
	if err != nil {
		return User{}, err
	}
	u, err = edit.apply(u)
	if err != nil {
		return User{}, err
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.st.UpsertUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}
