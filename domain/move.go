package domain

import (
	"fmt"
	"time"
)

// MoveDescriptor describes a drag-and-drop gesture. Indices address the
// rendered order of each list.
type MoveDescriptor struct {
	CardID            string `json:"cardId"`
	SourceListID      string `json:"sourceListId"`
	SourceIndex       int    `json:"sourceIndex"`
	DestinationListID string `json:"destinationListId"`
	DestinationIndex  int    `json:"destinationIndex"`
}

// Noop reports whether the gesture must be abandoned without side effects.
func (m MoveDescriptor) Noop() bool {
	if m.DestinationListID == "" {
		return true
	}
	return m.SourceListID == m.DestinationListID && m.SourceIndex == m.DestinationIndex
}

// CrossList reports whether the card changes lists.
func (m MoveDescriptor) CrossList() bool {
	return m.SourceListID != m.DestinationListID
}

// OrderUpdate is one document write of a move. FromListID and FromOrder
// record the stored position the plan was computed from.
type OrderUpdate struct {
	CardID     string `json:"cardId"`
	FromListID string `json:"fromListId"`
	FromOrder  int    `json:"fromOrder"`
	// ListID is only set for the moved card.
	ListID string `json:"listId,omitempty"`
	Order  int    `json:"order"`
}

// CardUpdate converts the write into a field-level merge.
func (u OrderUpdate) CardUpdate(now time.Time) CardUpdate {
	order := u.Order
	upd := CardUpdate{Order: &order}
	if u.ListID != "" {
		listID := u.ListID
		upd.ListID = &listID
		upd.UpdatedAt = &now
	}
	return upd
}

// MovePlan is the full set of writes for one gesture: the moved card first,
// then the sibling order fixes.
type MovePlan struct {
	Move   MoveDescriptor `json:"move"`
	Moved  OrderUpdate    `json:"moved"`
	Shifts []OrderUpdate  `json:"shifts,omitempty"`
	Noop   bool           `json:"noop,omitempty"`
}

// Updates returns every write of the plan, moved card first.
func (p MovePlan) Updates() []OrderUpdate {
	if p.Noop {
		return nil
	}
	out := make([]OrderUpdate, 0, 1+len(p.Shifts))
	out = append(out, p.Moved)
	return append(out, p.Shifts...)
}

// PlanMove computes the writes for mv against the rendered board. When
// compactSource is false the source list of a cross-list move keeps a gap
// where the card was.
func PlanMove(b Board, mv MoveDescriptor, compactSource bool) (MovePlan, error) {
	if mv.Noop() {
		return MovePlan{Move: mv, Noop: true}, nil
	}
	src, ok := b.Column(mv.SourceListID)
	if !ok {
		return MovePlan{}, fmt.Errorf("%w: unknown source list %s", ErrInvalidMove, mv.SourceListID)
	}
	dst, ok := b.Column(mv.DestinationListID)
	if !ok {
		return MovePlan{}, fmt.Errorf("%w: unknown destination list %s", ErrInvalidMove, mv.DestinationListID)
	}
	if mv.SourceIndex < 0 || mv.SourceIndex >= len(src.Cards) {
		return MovePlan{}, fmt.Errorf("%w: source index %d out of range", ErrStaleBoard, mv.SourceIndex)
	}
	moved := src.Cards[mv.SourceIndex]
	if moved.ID != mv.CardID {
		return MovePlan{}, fmt.Errorf("%w: card %s is not at index %d of list %s", ErrStaleBoard, mv.CardID, mv.SourceIndex, mv.SourceListID)
	}
	maxDest := len(dst.Cards)
	if !mv.CrossList() {
		maxDest--
	}
	if mv.DestinationIndex < 0 || mv.DestinationIndex > maxDest {
		return MovePlan{}, fmt.Errorf("%w: destination index %d out of range", ErrInvalidMove, mv.DestinationIndex)
	}

	plan := MovePlan{
		Move: mv,
		Moved: OrderUpdate{
			CardID:     moved.ID,
			FromListID: moved.ListID,
			FromOrder:  moved.Order,
			ListID:     mv.DestinationListID,
			Order:      mv.DestinationIndex,
		},
	}

	if !mv.CrossList() {
		seq := make([]Card, 0, len(src.Cards))
		seq = append(seq, src.Cards[:mv.SourceIndex]...)
		seq = append(seq, src.Cards[mv.SourceIndex+1:]...)
		seq = append(seq[:mv.DestinationIndex], append([]Card{moved}, seq[mv.DestinationIndex:]...)...)
		for i, c := range seq {
			if c.ID == moved.ID || c.Order == i {
				continue
			}
			plan.Shifts = append(plan.Shifts, OrderUpdate{CardID: c.ID, FromListID: c.ListID, FromOrder: c.Order, Order: i})
		}
		return plan, nil
	}

	for i, c := range dst.Cards {
		if i < mv.DestinationIndex || c.ID == moved.ID {
			continue
		}
		plan.Shifts = append(plan.Shifts, OrderUpdate{CardID: c.ID, FromListID: c.ListID, FromOrder: c.Order, Order: i + 1})
	}
	if compactSource {
		next := 0
		for _, c := range src.Cards {
			if c.ID == moved.ID {
				continue
			}
			if c.Order != next {
				plan.Shifts = append(plan.Shifts, OrderUpdate{CardID: c.ID, FromListID: c.ListID, FromOrder: c.Order, Order: next})
			}
			next++
		}
	}
	return plan, nil
}

// ApplyPlan returns the snapshot as it will look once every write of the
// plan has been committed.
func ApplyPlan(s Snapshot, p MovePlan) Snapshot {
	if p.Noop {
		return s
	}
	writes := make(map[string]OrderUpdate, 1+len(p.Shifts))
	for _, u := range p.Updates() {
		writes[u.CardID] = u
	}
	out := s
	out.Cards = make([]Card, len(s.Cards))
	for i, c := range s.Cards {
		if u, ok := writes[c.ID]; ok {
			if u.ListID != "" {
				c.ListID = u.ListID
			}
			c.Order = u.Order
		}
		out.Cards[i] = c
	}
	return out
}
