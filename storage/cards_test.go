package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"scrum-board/domain"
)

func seedBoard(t *testing.T, s *Storage) {
	t.Helper()
	ctx := context.Background()
	for i, id := range []string{"A", "B"} {
		if err := s.InsertList(ctx, domain.List{ID: id, TeamID: "t1", Name: id, Order: i}); err != nil {
			t.Fatalf("insert list: %v", err)
		}
	}
	cards := map[string][]string{"A": {"a0", "a1", "a2"}, "B": {"b0", "b1"}}
	for list, ids := range cards {
		for i, id := range ids {
			if err := s.InsertCard(ctx, domain.Card{ID: id, TeamID: "t1", ListID: list, Title: id, Order: i, Tags: []string{"x"}}); err != nil {
				t.Fatalf("insert card: %v", err)
			}
		}
	}
}

func TestSnapshotReadsListsAndCards(t *testing.T) {
	s, _ := newTestStorage()
	seedBoard(t, s)
	s.InsertCard(context.Background(), domain.Card{ID: "z", TeamID: "t2", ListID: "Q"})

	snap, err := s.Snapshot(context.Background(), "t1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lists) != 2 || len(snap.Cards) != 5 {
		t.Fatalf("unexpected snapshot: %d lists %d cards", len(snap.Lists), len(snap.Cards))
	}
	b := domain.GroupBoard(snap)
	col, _ := b.Column("A")
	if col.Cards[2].ID != "a2" || col.Cards[2].Tags[0] != "x" {
		t.Fatalf("unexpected column: %+v", col.Cards)
	}
}

func TestUpdateCardMergesFields(t *testing.T) {
	s, ft := newTestStorage()
	seedBoard(t, s)
	ctx := context.Background()
	order := 7
	if err := s.UpdateCard(ctx, "t1", "a1", domain.CardUpdate{Order: &order}); err != nil {
		t.Fatalf("update: %v", err)
	}
	c, _ := s.GetCard(ctx, "t1", "a1")
	if c.Order != 7 || c.Title != "a1" || c.ListID != "A" || len(c.Tags) != 1 {
		t.Fatalf("merge lost fields: %+v", c)
	}
	if _, ok := ft.cards.props("t1", "a1")["UpdatedAt@odata.type"]; !ok {
		t.Fatalf("untouched properties must survive the merge")
	}

	if err := s.UpdateCard(ctx, "t1", "missing", domain.CardUpdate{Order: &order}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func guardedMove() []domain.GuardedUpdate {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	plan := domain.MovePlan{
		Moved: domain.OrderUpdate{CardID: "a2", FromListID: "A", FromOrder: 2, ListID: "A", Order: 0},
		Shifts: []domain.OrderUpdate{
			{CardID: "a0", FromListID: "A", FromOrder: 0, Order: 1},
			{CardID: "a1", FromListID: "A", FromOrder: 1, Order: 2},
		},
	}
	var ops []domain.GuardedUpdate
	for _, u := range plan.Updates() {
		ops = append(ops, domain.GuardedUpdate{CardID: u.CardID, ExpectListID: u.FromListID, ExpectOrder: u.FromOrder, Update: u.CardUpdate(now)})
	}
	return ops
}

func TestUpdateCardsGuardedCommits(t *testing.T) {
	s, ft := newTestStorage()
	seedBoard(t, s)
	ctx := context.Background()

	if err := s.UpdateCardsGuarded(ctx, "t1", guardedMove()); err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if ft.cards.txCalls != 1 {
		t.Fatalf("expected one transaction, got %d", ft.cards.txCalls)
	}
	for id, want := range map[string]int{"a2": 0, "a0": 1, "a1": 2} {
		c, _ := s.GetCard(ctx, "t1", id)
		if c.Order != want {
			t.Fatalf("%s: expected order %d, got %d", id, want, c.Order)
		}
	}
	if c, _ := s.GetCard(ctx, "t1", "a2"); c.UpdatedAt.IsZero() {
		t.Fatalf("moved card should carry updatedAt")
	}
}

func TestUpdateCardsGuardedRejectsMovedCard(t *testing.T) {
	s, ft := newTestStorage()
	seedBoard(t, s)
	ctx := context.Background()
	listB := "B"
	if err := s.UpdateCard(ctx, "t1", "a0", domain.CardUpdate{ListID: &listB}); err != nil {
		t.Fatalf("update: %v", err)
	}

	err := s.UpdateCardsGuarded(ctx, "t1", guardedMove())
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if ft.cards.txCalls != 0 {
		t.Fatalf("transaction must not be submitted")
	}
	if c, _ := s.GetCard(ctx, "t1", "a2"); c.Order != 2 {
		t.Fatalf("nothing should be written")
	}
}

func TestUpdateCardsGuardedRejectsRacingWrite(t *testing.T) {
	s, ft := newTestStorage()
	seedBoard(t, s)
	ctx := context.Background()

	raced := false
	ft.cards.afterGet = func(pk, rk string) {
		if rk != "a1" || raced {
			return
		}
		raced = true
		title := "renamed"
		if err := s.UpdateCard(ctx, pk, "a2", domain.CardUpdate{Title: &title}); err != nil {
			t.Errorf("racing update: %v", err)
		}
	}

	err := s.UpdateCardsGuarded(ctx, "t1", guardedMove())
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict from stale etag, got %v", err)
	}
	if c, _ := s.GetCard(ctx, "t1", "a0"); c.Order != 0 {
		t.Fatalf("failed transaction must not write")
	}
}

func TestUpdateCardsGuardedLimit(t *testing.T) {
	s, _ := newTestStorage()
	ops := make([]domain.GuardedUpdate, domain.MaxGuardedUpdates+1)
	for i := range ops {
		ops[i] = domain.GuardedUpdate{CardID: fmt.Sprintf("c%d", i)}
	}
	if err := s.UpdateCardsGuarded(context.Background(), "t1", ops); err == nil {
		t.Fatalf("expected error for oversized transaction")
	}
}

func TestDeleteCard(t *testing.T) {
	s, _ := newTestStorage()
	seedBoard(t, s)
	ctx := context.Background()
	if err := s.DeleteCard(ctx, "t1", "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if c, _ := s.GetCard(ctx, "t1", "a1"); c != nil {
		t.Fatalf("card still present")
	}
	if c, _ := s.GetCard(ctx, "t1", "a2"); c.Order != 2 {
		t.Fatalf("siblings keep their order")
	}
}
