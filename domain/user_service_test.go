package domain

import (
	"context"
	"errors"
	"testing"
)

func TestProfileDefaultsFromActor(t *testing.T) {
	svc := NewUserService(newFakeStore())
	u, err := svc.Profile(context.Background(), alice)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if u.ID != alice.ID || u.Name != "Alice" || u.Email != alice.Email {
		t.Fatalf("unexpected profile: %+v", u)
	}
}

func TestUpdateProfile(t *testing.T) {
	st := newFakeStore()
	svc := NewUserService(st)
	svc.now = fixedNow
	ctx := context.Background()

	bio := "Builds boards"
	email := " Alice@Corp.Example "
	u, err := svc.UpdateProfile(ctx, alice, ProfileEdit{Bio: &bio, Email: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.Email != "alice@corp.example" || u.Bio != bio || u.Name != "Alice" || !u.UpdatedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected profile: %+v", u)
	}
	if stored := st.users[alice.ID]; stored.Email != "alice@corp.example" {
		t.Fatalf("profile not persisted: %+v", stored)
	}

	bad := "not-an-email"
	if _, err := svc.UpdateProfile(ctx, alice, ProfileEdit{Email: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
