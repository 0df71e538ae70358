package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCommentThread(t *testing.T) {
	st := seededStore()
	acts := &recordedActivities{}
	svc := NewCommentService(st, acts)
	svc.newID = sequentialIDs("cm")
	clock := fixedNow()
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	ctx := context.Background()

	if _, err := svc.AddComment(ctx, alice, "t1", "a0", "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.AddComment(ctx, alice, "t1", "missing", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	first, err := svc.AddComment(ctx, alice, "t1", "a0", "first")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.Author != "Alice" || first.AuthorID != alice.ID {
		t.Fatalf("unexpected author: %+v", first)
	}
	if _, err := svc.AddComment(ctx, Actor{ID: "u-bob", Email: "bob@example.com"}, "t1", "a0", "second"); err != nil {
		t.Fatalf("add: %v", err)
	}

	thread, err := svc.Comments(ctx, "a0")
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	if len(thread) != 2 || thread[0].Text != "first" || thread[1].Author != "bob@example.com" {
		t.Fatalf("unexpected thread: %+v", thread)
	}
	if len(acts.entries) != 2 || acts.entries[0].Type != ActivityCommentAdded {
		t.Fatalf("unexpected activities: %+v", acts.entries)
	}
}

func TestDeleteCommentRequiresAuthor(t *testing.T) {
	st := seededStore()
	svc := NewCommentService(st, nil)
	ctx := context.Background()
	c, err := svc.AddComment(ctx, alice, "t1", "a0", "mine")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.DeleteComment(ctx, Actor{ID: "u-bob"}, "a0", c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteComment(ctx, alice, "a0", c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteComment(ctx, alice, "a0", c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
