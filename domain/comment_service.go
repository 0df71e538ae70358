package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommentStorage defines the persistence needed by CommentService.
type CommentStorage interface {
	GetCard(ctx context.Context, teamID, cardID string) (*Card, error)
	InsertComment(ctx context.Context, c Comment) error
	ListComments(ctx context.Context, cardID string) ([]Comment, error)
	GetComment(ctx context.Context, cardID, commentID string) (*Comment, error)
	DeleteComment(ctx context.Context, cardID, commentID string) error
}

// CommentService manages card comment threads.
type CommentService struct {
	st         CommentStorage
	activities ActivityLogger
	now        func() time.Time
	newID      func() string
}

func NewCommentService(st CommentStorage, activities ActivityLogger) CommentService {
	if activities == nil {
		activities = nopActivityLogger{}
	}
	return CommentService{st: st, activities: activities, now: time.Now, newID: uuid.NewString}
}

// AddComment appends a comment to a card.
func (s CommentService) AddComment(ctx context.Context, actor Actor, teamID, cardID, text string) (Comment, error) {
	if strings.TrimSpace(text) == "" {
		return Comment{}, fmt.Errorf("%w: comment text is required", ErrValidation)
	}
	card, err := s.st.GetCard(ctx, teamID, cardID)
	if err != nil {
		return Comment{}, err
	}
	if card == nil {
		return Comment{}, fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	c := Comment{
		ID:        s.newID(),
		CardID:    cardID,
		Text:      text,
		Author:    actor.DisplayName(),
		AuthorID:  actor.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.st.InsertComment(ctx, c); err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityCommentAdded,
		fmt.Sprintf("%s commented on %q", actor.DisplayName(), card.Title), actor.ID))
	return c, nil
}

// Comments returns the thread of a card, oldest first.
func (s CommentService) Comments(ctx context.Context, cardID string) ([]Comment, error) {
	comments, err := s.st.ListComments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

// DeleteComment removes a comment written by the actor.
func (s CommentService) DeleteComment(ctx context.Context, actor Actor, cardID, commentID string) error {
	c, err := s.st.GetComment(ctx, cardID, commentID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	if c.AuthorID != actor.ID {
		return fmt.Errorf("comment %s belongs to another user: %w", commentID, ErrForbidden)
	}
	return s.st.DeleteComment(ctx, cardID, commentID)
}
