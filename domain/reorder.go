package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// MoveMode selects how the writes of a move reach the store.
type MoveMode string

const (
	// MoveBestEffort issues independent updates; partial application is
	// possible and failures are only logged.
	MoveBestEffort MoveMode = "best-effort"
	// MoveTransactional applies every write of a move atomically, guarded by
	// the stored position of each affected card.
	MoveTransactional MoveMode = "transactional"
)

// ParseMoveMode parses a configuration value. Empty selects transactional.
func ParseMoveMode(s string) (MoveMode, error) {
	switch MoveMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MoveTransactional:
		return MoveTransactional, nil
	case MoveBestEffort:
		return MoveBestEffort, nil
	}
	return "", fmt.Errorf("unknown move mode %q", s)
}

// MaxGuardedUpdates is the largest move the store can apply in one
// transaction.
const MaxGuardedUpdates = 100

// CardWriter merges fields into an existing card document. It fails with
// ErrNotFound when the card does not exist.
type CardWriter interface {
	UpdateCard(ctx context.Context, teamID, cardID string, upd CardUpdate) error
}

// GuardedUpdate is a card write that only applies while the card is still
// stored at ExpectListID/ExpectOrder.
type GuardedUpdate struct {
	CardID       string
	ExpectListID string
	ExpectOrder  int
	Update       CardUpdate
}

// CardTransactor applies guarded writes all-or-nothing. It returns
// ErrConcurrencyConflict when any card moved since the plan was computed.
type CardTransactor interface {
	UpdateCardsGuarded(ctx context.Context, teamID string, ops []GuardedUpdate) error
}

// MoveStatus summarises the outcome of a move.
type MoveStatus string

const (
	MoveNoop      MoveStatus = "noop"
	MoveApplied   MoveStatus = "applied"
	MovePartial   MoveStatus = "partial"
	MoveAbandoned MoveStatus = "abandoned"
	MoveDuplicate MoveStatus = "duplicate"
)

// MoveResult reports what happened to the writes of a move.
type MoveResult struct {
	Status MoveStatus `json:"status"`
	Issued int        `json:"issued"`
	Failed int        `json:"failed,omitempty"`
}

// ReorderEngine turns move descriptors into card order writes.
type ReorderEngine struct {
	writer        CardWriter
	tx            CardTransactor
	mode          MoveMode
	compactSource bool
	now           func() time.Time
}

// EngineOption configures a ReorderEngine.
type EngineOption func(*ReorderEngine)

// WithCompactSource closes the gap a cross-list move leaves in the source
// list. Off by default.
func WithCompactSource(on bool) EngineOption {
	return func(e *ReorderEngine) { e.compactSource = on }
}

// WithClock overrides the time source used for updatedAt.
func WithClock(now func() time.Time) EngineOption {
	return func(e *ReorderEngine) { e.now = now }
}

// NewReorderEngine creates an engine writing through w. Transactional mode
// requires w to implement CardTransactor and degrades to best effort
// otherwise.
func NewReorderEngine(w CardWriter, mode MoveMode, opts ...EngineOption) ReorderEngine {
	e := ReorderEngine{writer: w, mode: mode, now: time.Now}
	for _, o := range opts {
		o(&e)
	}
	if e.mode == MoveTransactional {
		if tx, ok := w.(CardTransactor); ok {
			e.tx = tx
		} else {
			log.Warn("store does not support guarded updates; moves fall back to best effort")
			e.mode = MoveBestEffort
		}
	}
	if e.mode == "" {
		e.mode = MoveBestEffort
	}
	return e
}

// Mode returns the effective move mode.
func (e ReorderEngine) Mode() MoveMode { return e.mode }

// Plan validates mv against the board and computes its writes.
func (e ReorderEngine) Plan(b Board, mv MoveDescriptor) (MovePlan, error) {
	return PlanMove(b, mv, e.compactSource)
}

// Move plans and applies mv.
func (e ReorderEngine) Move(ctx context.Context, b Board, mv MoveDescriptor) (MoveResult, error) {
	plan, err := e.Plan(b, mv)
	if err != nil {
		return MoveResult{}, err
	}
	return e.Apply(ctx, b.TeamID, plan)
}

// Apply writes a plan. In best-effort mode store failures are logged and
// never returned; in transactional mode the whole move either commits or
// fails with the store error.
func (e ReorderEngine) Apply(ctx context.Context, teamID string, plan MovePlan) (MoveResult, error) {
	if plan.Noop {
		return MoveResult{Status: MoveNoop}, nil
	}
	updates := plan.Updates()
	if e.mode == MoveTransactional && e.tx != nil {
		if len(updates) <= MaxGuardedUpdates {
			return e.applyGuarded(ctx, teamID, updates)
		}
		log.WithFields(log.Fields{"team": teamID, "card": plan.Moved.CardID, "updates": len(updates)}).
			Warn("move exceeds transaction size; applying best effort")
	}
	return e.applyBestEffort(ctx, teamID, updates), nil
}

func (e ReorderEngine) applyGuarded(ctx context.Context, teamID string, updates []OrderUpdate) (MoveResult, error) {
	now := e.now()
	ops := make([]GuardedUpdate, len(updates))
	for i, u := range updates {
		ops[i] = GuardedUpdate{
			CardID:       u.CardID,
			ExpectListID: u.FromListID,
			ExpectOrder:  u.FromOrder,
			Update:       u.CardUpdate(now),
		}
	}
	if err := e.tx.UpdateCardsGuarded(ctx, teamID, ops); err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			log.WithFields(log.Fields{"team": teamID, "card": updates[0].CardID}).Info("move rejected: board changed concurrently")
		} else {
			log.WithError(err).WithField("team", teamID).Error("move transaction failed")
		}
		return MoveResult{Status: MoveAbandoned, Issued: len(ops), Failed: len(ops)}, fmt.Errorf("move card %s: %w", updates[0].CardID, err)
	}
	return MoveResult{Status: MoveApplied, Issued: len(ops)}, nil
}

func (e ReorderEngine) applyBestEffort(ctx context.Context, teamID string, updates []OrderUpdate) MoveResult {
	now := e.now()
	moved := updates[0]
	if err := e.writer.UpdateCard(ctx, teamID, moved.CardID, moved.CardUpdate(now)); err != nil {
		log.WithError(err).WithFields(log.Fields{"team": teamID, "card": moved.CardID}).Error("move card failed")
		return MoveResult{Status: MoveAbandoned, Issued: 1, Failed: 1}
	}

	shifts := updates[1:]
	var failed atomic.Int32
	var wg sync.WaitGroup
	for _, u := range shifts {
		wg.Add(1)
		go func(u OrderUpdate) {
			defer wg.Done()
			if err := e.writer.UpdateCard(ctx, teamID, u.CardID, u.CardUpdate(now)); err != nil {
				failed.Add(1)
				log.WithError(err).WithFields(log.Fields{"team": teamID, "card": u.CardID, "order": u.Order}).
					Error("reorder sibling card failed")
			}
		}(u)
	}
	wg.Wait()

	res := MoveResult{Status: MoveApplied, Issued: len(updates), Failed: int(failed.Load())}
	if res.Failed > 0 {
		res.Status = MovePartial
	}
	return res
}
