package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func seededStore() *fakeStore {
	st := newFakeStore()
	st.seedList("t1", "A", 0, "a0", "a1", "a2")
	st.seedList("t1", "B", 1, "b0", "b1")
	return st
}

func boardOf(t *testing.T, st *fakeStore) Board {
	t.Helper()
	snap, err := st.Snapshot(context.Background(), "t1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return GroupBoard(snap)
}

func TestParseMoveMode(t *testing.T) {
	cases := map[string]MoveMode{"": MoveTransactional, "transactional": MoveTransactional, " Best-Effort ": MoveBestEffort}
	for in, want := range cases {
		got, err := ParseMoveMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMoveMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMoveMode("eventual"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestNewReorderEngineFallsBackWithoutTransactor(t *testing.T) {
	e := NewReorderEngine(newFakeStore(), MoveTransactional)
	if e.Mode() != MoveBestEffort {
		t.Fatalf("expected best-effort fallback, got %s", e.Mode())
	}
	e = NewReorderEngine(txStore{newFakeStore()}, MoveTransactional)
	if e.Mode() != MoveTransactional {
		t.Fatalf("expected transactional, got %s", e.Mode())
	}
}

func TestBestEffortMoveWithinList(t *testing.T) {
	st := seededStore()
	e := NewReorderEngine(st, MoveBestEffort, WithClock(fixedNow))

	res, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
		CardID: "a2", SourceListID: "A", SourceIndex: 2, DestinationListID: "A", DestinationIndex: 0,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Status != MoveApplied || res.Issued != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.card("a2").Order != 0 || st.card("a0").Order != 1 || st.card("a1").Order != 2 {
		t.Fatalf("unexpected orders a2=%d a0=%d a1=%d", st.card("a2").Order, st.card("a0").Order, st.card("a1").Order)
	}
	if calls := st.calls(); calls[0] != "a2" {
		t.Fatalf("moved card must be written first, got %v", calls)
	}
	if !st.card("a2").UpdatedAt.Equal(fixedNow()) {
		t.Fatalf("moved card should carry updatedAt")
	}
	if !st.card("a0").UpdatedAt.IsZero() {
		t.Fatalf("sibling updatedAt must stay untouched")
	}
}

func TestBestEffortMoveAcrossLists(t *testing.T) {
	st := seededStore()
	e := NewReorderEngine(st, MoveBestEffort)

	if _, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
		CardID: "a1", SourceListID: "A", SourceIndex: 1, DestinationListID: "B", DestinationIndex: 1,
	}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if c := st.card("a1"); c.ListID != "B" || c.Order != 1 {
		t.Fatalf("unexpected a1: %+v", c)
	}
	if st.card("b0").Order != 0 || st.card("b1").Order != 2 {
		t.Fatalf("unexpected destination orders b0=%d b1=%d", st.card("b0").Order, st.card("b1").Order)
	}
	if st.card("a2").Order != 2 {
		t.Fatalf("source list is not compacted by default")
	}
	if len(st.calls()) != 2 {
		t.Fatalf("expected 2 writes, got %v", st.calls())
	}
}

func TestMoveNoopIssuesNoWrites(t *testing.T) {
	st := seededStore()
	for _, e := range []ReorderEngine{NewReorderEngine(st, MoveBestEffort), NewReorderEngine(txStore{st}, MoveTransactional)} {
		res, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
			CardID: "a1", SourceListID: "A", SourceIndex: 1, DestinationListID: "A", DestinationIndex: 1,
		})
		if err != nil || res.Status != MoveNoop {
			t.Fatalf("expected noop, got %+v %v", res, err)
		}
	}
	if len(st.calls()) != 0 || len(st.guarded) != 0 {
		t.Fatalf("noop must not write")
	}
}

func TestBestEffortPartialFailureIsSwallowed(t *testing.T) {
	st := seededStore()
	st.failUpdate["a1"] = errors.New("throttled")
	e := NewReorderEngine(st, MoveBestEffort)

	res, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
		CardID: "a2", SourceListID: "A", SourceIndex: 2, DestinationListID: "A", DestinationIndex: 0,
	})
	if err != nil {
		t.Fatalf("best-effort move must not return store errors: %v", err)
	}
	if res.Status != MovePartial || res.Failed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.card("a2").Order != 0 || st.card("a0").Order != 1 {
		t.Fatalf("successful writes should be committed")
	}
	if st.card("a1").Order != 1 {
		t.Fatalf("failed write should leave a1 at 1, got %d", st.card("a1").Order)
	}
}

func TestBestEffortAbandonsWhenMovedCardFails(t *testing.T) {
	st := seededStore()
	st.failUpdate["a2"] = errors.New("gone")
	e := NewReorderEngine(st, MoveBestEffort)

	res, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
		CardID: "a2", SourceListID: "A", SourceIndex: 2, DestinationListID: "A", DestinationIndex: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != MoveAbandoned {
		t.Fatalf("expected abandoned, got %+v", res)
	}
	if calls := st.calls(); len(calls) != 1 {
		t.Fatalf("sibling writes must not be issued after the moved card fails: %v", calls)
	}
}

func TestTransactionalMoveCommitsAll(t *testing.T) {
	st := seededStore()
	e := NewReorderEngine(txStore{st}, MoveTransactional, WithClock(fixedNow))

	res, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
		CardID: "a2", SourceListID: "A", SourceIndex: 2, DestinationListID: "A", DestinationIndex: 0,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Status != MoveApplied || res.Issued != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(st.guarded) != 1 || len(st.calls()) != 0 {
		t.Fatalf("expected a single guarded batch")
	}
	ops := st.guarded[0]
	if ops[0].CardID != "a2" || ops[0].ExpectListID != "A" || ops[0].ExpectOrder != 2 {
		t.Fatalf("unexpected guard on moved card: %+v", ops[0])
	}
	if st.card("a2").Order != 0 || st.card("a0").Order != 1 || st.card("a1").Order != 2 {
		t.Fatalf("orders not applied")
	}
}

func TestTransactionalMoveRejectsStalePlan(t *testing.T) {
	st := seededStore()
	e := NewReorderEngine(txStore{st}, MoveTransactional)
	b := boardOf(t, st)

	// another client moves a0 after the board was read
	st.cards["a0"] = Card{ID: "a0", TeamID: "t1", ListID: "B", Order: 2}

	res, err := e.Move(context.Background(), b, MoveDescriptor{
		CardID: "a2", SourceListID: "A", SourceIndex: 2, DestinationListID: "A", DestinationIndex: 0,
	})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if res.Status != MoveAbandoned {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.card("a2").Order != 2 || st.card("a1").Order != 1 {
		t.Fatalf("conflicting move must not write anything")
	}
}

func TestTransactionalMoveFallsBackForLargeMoves(t *testing.T) {
	st := newFakeStore()
	ids := make([]string, MaxGuardedUpdates+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%03d", i)
	}
	st.seedList("t1", "A", 0, ids...)
	st.seedList("t1", "B", 1)
	e := NewReorderEngine(txStore{st}, MoveTransactional)

	last := len(ids) - 1
	res, err := e.Move(context.Background(), boardOf(t, st), MoveDescriptor{
		CardID: ids[last], SourceListID: "A", SourceIndex: last, DestinationListID: "A", DestinationIndex: 0,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Status != MoveApplied || res.Issued != len(ids) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(st.guarded) != 0 || len(st.calls()) != len(ids) {
		t.Fatalf("expected independent writes, got %d guarded batches and %d calls", len(st.guarded), len(st.calls()))
	}
}
