package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CardStorage defines the persistence needed by CardService.
type CardStorage interface {
	CardWriter
	Snapshot(ctx context.Context, teamID string) (Snapshot, error)
	GetCard(ctx context.Context, teamID, cardID string) (*Card, error)
	InsertCard(ctx context.Context, c Card) error
	DeleteCard(ctx context.Context, teamID, cardID string) error
}

// MoveObserver is told about moves so live views can render them before the
// store confirms.
type MoveObserver interface {
	MoveStarted(teamID string, p PendingMove)
	MoveFailed(teamID string)
}

type nopMoveObserver struct{}

func (nopMoveObserver) MoveStarted(string, PendingMove) {}
func (nopMoveObserver) MoveFailed(string)               {}

// CardService handles card editing and moves on a team board.
type CardService struct {
	st          CardStorage
	engine      ReorderEngine
	activities  ActivityLogger
	observer    MoveObserver
	moveTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// CardServiceOption configures a CardService.
type CardServiceOption func(*CardService)

// WithMoveObserver registers o for move notifications.
func WithMoveObserver(o MoveObserver) CardServiceOption {
	return func(s *CardService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithMoveTimeout bounds the store writes of a single move.
func WithMoveTimeout(d time.Duration) CardServiceOption {
	return func(s *CardService) { s.moveTimeout = d }
}

func NewCardService(st CardStorage, engine ReorderEngine, activities ActivityLogger, opts ...CardServiceOption) CardService {
	if activities == nil {
		activities = nopActivityLogger{}
	}
	s := CardService{
		st:          st,
		engine:      engine,
		activities:  activities,
		observer:    nopMoveObserver{},
		moveTimeout: 10 * time.Second,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Board returns the team's board derived from the current snapshot.
func (s CardService) Board(ctx context.Context, teamID string) (Board, error) {
	snap, err := s.st.Snapshot(ctx, teamID)
	if err != nil {
		return Board{}, err
	}
	return GroupBoard(snap), nil
}

// CreateCard appends a card to the bottom of a list.
func (s CardService) CreateCard(ctx context.Context, actor Actor, teamID string, in NewCard) (Card, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Card{}, fmt.Errorf("%w: card title is required", ErrValidation)
	}
	b, err := s.Board(ctx, teamID)
	if err != nil {
		return Card{}, err
	}
	col, ok := b.Column(in.ListID)
	if !ok {
		return Card{}, fmt.Errorf("list %s: %w", in.ListID, ErrNotFound)
	}
	now := s.now().UTC()
	c := Card{
		ID:            s.newID(),
		TeamID:        teamID,
		ListID:        in.ListID,
		Title:         title,
		Description:   in.Description,
		Order:         len(col.Cards),
		CreatedBy:     actor.ID,
		CreatedByName: actor.DisplayName(),
		CreatedAt:     now,
	}
	if err := s.st.InsertCard(ctx, c); err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityCardCreated,
		fmt.Sprintf("%s created card %q in %s", actor.DisplayName(), c.Title, col.List.Name), actor.ID))
	return c, nil
}

// EditCard applies title, description, priority and tag edits.
func (s CardService) EditCard(ctx context.Context, actor Actor, teamID, cardID string, edit CardEdit) (Card, error) {
	upd, err := edit.toUpdate(s.now().UTC())
	if err != nil {
		return Card{}, err
	}
	if err := s.st.UpdateCard(ctx, teamID, cardID, upd); err != nil {
		return Card{}, err
	}
	c, err := s.st.GetCard(ctx, teamID, cardID)
	if err != nil {
		return Card{}, err
	}
	if c == nil {
		return Card{}, fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityCardUpdated,
		fmt.Sprintf("%s updated card %q", actor.DisplayName(), c.Title), actor.ID))
	return *c, nil
}

// DeleteCard removes a card. Remaining cards of its list keep their order.
func (s CardService) DeleteCard(ctx context.Context, actor Actor, teamID, cardID string) error {
	c, err := s.st.GetCard(ctx, teamID, cardID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	if err := s.st.DeleteCard(ctx, teamID, cardID); err != nil {
		return err
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityCardDeleted,
		fmt.Sprintf("%s deleted card %q", actor.DisplayName(), c.Title), actor.ID))
	return nil
}

// MoveCard applies a drag-and-drop gesture against the current board.
func (s CardService) MoveCard(ctx context.Context, actor Actor, teamID string, mv MoveDescriptor) (MoveResult, error) {
	if mv.Noop() {
		return MoveResult{Status: MoveNoop}, nil
	}
	b, err := s.Board(ctx, teamID)
	if err != nil {
		return MoveResult{}, err
	}
	plan, err := s.engine.Plan(b, mv)
	if err != nil {
		return MoveResult{}, err
	}
	if plan.Noop {
		return MoveResult{Status: MoveNoop}, nil
	}

	s.observer.MoveStarted(teamID, PendingMove{Plan: plan, StartedAt: s.now()})
	moveCtx := ctx
	if s.moveTimeout > 0 {
		var cancel context.CancelFunc
		moveCtx, cancel = context.WithTimeout(ctx, s.moveTimeout)
		defer cancel()
	}
	res, err := s.engine.Apply(moveCtx, teamID, plan)
	if err != nil || res.Status == MoveAbandoned {
		s.observer.MoveFailed(teamID)
		return res, err
	}

	card, _ := b.Card(mv.CardID)
	src, _ := b.Column(mv.SourceListID)
	dst, _ := b.Column(mv.DestinationListID)
	desc := fmt.Sprintf("%s moved card %q within %s", actor.DisplayName(), card.Title, dst.List.Name)
	if mv.CrossList() {
		desc = fmt.Sprintf("%s moved card %q from %s to %s", actor.DisplayName(), card.Title, src.List.Name, dst.List.Name)
	}
	s.activities.Log(ctx, newActivity(teamID, ActivityCardMoved, desc, actor.ID))
	return res, nil
}
