package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func sequence(counts ...int32) pendingCounter {
	i := 0
	return func(context.Context) (int32, error) {
		n := counts[min(i, len(counts)-1)]
		i++
		return n, nil
	}
}

func TestWaitDrainedRequiresStablePolls(t *testing.T) {
	polls := 0
	counts := []int32{3, 0, 1, 0, 0}
	queues := map[string]pendingCounter{
		"activities": func(context.Context) (int32, error) {
			n := counts[min(polls, len(counts)-1)]
			polls++
			return n, nil
		},
	}
	if err := waitDrained(context.Background(), time.Millisecond, 2, queues); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if polls != 5 {
		t.Fatalf("expected 5 polls, got %d", polls)
	}
}

func TestWaitDrainedTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := waitDrained(ctx, time.Millisecond, 1, map[string]pendingCounter{"activities": sequence(5)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWaitDrainedPropagatesErrors(t *testing.T) {
	boom := errors.New("forbidden")
	err := waitDrained(context.Background(), time.Millisecond, 1, map[string]pendingCounter{
		"activities": func(context.Context) (int32, error) { return 0, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestQueueListRejectsEmpty(t *testing.T) {
	var q queueList
	if err := q.Set(""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := q.Set("a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := q.Set("b"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if q.String() != "a,b" {
		t.Fatalf("unexpected list %q", q.String())
	}
}
