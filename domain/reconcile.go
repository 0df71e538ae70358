package domain

import "time"

// PendingMove is a move that has been issued but not yet observed in a
// snapshot.
type PendingMove struct {
	Plan      MovePlan  `json:"plan"`
	StartedAt time.Time `json:"startedAt"`
}

// BoardState is what a subscriber renders: the last confirmed snapshot plus
// at most one pending move. Every method returns a new value.
type BoardState struct {
	Snapshot Snapshot     `json:"snapshot"`
	Pending  *PendingMove `json:"pending,omitempty"`
}

// View derives the board from the confirmed snapshot with the pending move
// applied on top.
func (s BoardState) View() Board {
	if s.Pending == nil {
		return GroupBoard(s.Snapshot)
	}
	return GroupBoard(ApplyPlan(s.Snapshot, s.Pending.Plan))
}

// Begin records p as the pending move, replacing any previous one.
func (s BoardState) Begin(p PendingMove) BoardState {
	if p.Plan.Noop {
		return s
	}
	pending := p
	s.Pending = &pending
	return s
}

// Observe replaces the confirmed snapshot. The pending move is cleared once
// the snapshot shows the moved card at its destination.
func (s BoardState) Observe(snap Snapshot) BoardState {
	s.Snapshot = snap
	if s.Pending != nil && reflects(snap, s.Pending.Plan) {
		s.Pending = nil
	}
	return s
}

// Fail clears the pending move after its writes were rejected.
func (s BoardState) Fail() BoardState {
	s.Pending = nil
	return s
}

// Expire clears a pending move that has been outstanding longer than timeout.
func (s BoardState) Expire(now time.Time, timeout time.Duration) BoardState {
	if s.Pending == nil || timeout <= 0 {
		return s
	}
	if now.Sub(s.Pending.StartedAt) >= timeout {
		s.Pending = nil
	}
	return s
}

func reflects(snap Snapshot, p MovePlan) bool {
	for _, c := range snap.Cards {
		if c.ID == p.Moved.CardID {
			return c.ListID == p.Moved.ListID && c.Order == p.Moved.Order
		}
	}
	// The card is gone; nothing left to wait for.
	return true
}
