package domain

import "sort"

// Snapshot is a point-in-time result of the live board query for a team.
// Cards arrive unordered; Version increases with every snapshot a process
// observes for the team.
type Snapshot struct {
	TeamID  string `json:"teamId"`
	Version int64  `json:"version"`
	Lists   []List `json:"lists"`
	Cards   []Card `json:"cards"`
}

// Column is one list together with its cards in rendering order.
type Column struct {
	List  List   `json:"list"`
	Cards []Card `json:"cards"`
}

// Board is the rendered view of a snapshot.
type Board struct {
	TeamID  string   `json:"teamId"`
	Columns []Column `json:"columns"`
	// Orphans holds cards whose list is not part of the snapshot.
	Orphans []Card `json:"orphans,omitempty"`
}

// GroupBoard derives the board view from a snapshot. Lists are sorted by
// order and cards are grouped by list and sorted by order, ties broken by id.
// The snapshot is not modified.
func GroupBoard(s Snapshot) Board {
	lists := append([]List(nil), s.Lists...)
	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].Order != lists[j].Order {
			return lists[i].Order < lists[j].Order
		}
		return lists[i].ID < lists[j].ID
	})

	byList := make(map[string][]Card, len(lists))
	known := make(map[string]struct{}, len(lists))
	for _, l := range lists {
		known[l.ID] = struct{}{}
	}
	b := Board{TeamID: s.TeamID, Columns: make([]Column, 0, len(lists))}
	for _, c := range s.Cards {
		if _, ok := known[c.ListID]; !ok {
			b.Orphans = append(b.Orphans, c)
			continue
		}
		byList[c.ListID] = append(byList[c.ListID], c)
	}
	for _, l := range lists {
		cards := byList[l.ID]
		sortCards(cards)
		if cards == nil {
			cards = []Card{}
		}
		b.Columns = append(b.Columns, Column{List: l, Cards: cards})
	}
	sortCards(b.Orphans)
	return b
}

func sortCards(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Order != cards[j].Order {
			return cards[i].Order < cards[j].Order
		}
		return cards[i].ID < cards[j].ID
	})
}

// Column returns the column for listID.
func (b Board) Column(listID string) (Column, bool) {
	for _, c := range b.Columns {
		if c.List.ID == listID {
			return c, true
		}
	}
	return Column{}, false
}

// Card finds a card anywhere on the board.
func (b Board) Card(cardID string) (Card, bool) {
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			if c.ID == cardID {
				return c, true
			}
		}
	}
	for _, c := range b.Orphans {
		if c.ID == cardID {
			return c, true
		}
	}
	return Card{}, false
}

// Snapshot flattens the board back into snapshot form.
func (b Board) Snapshot() Snapshot {
	s := Snapshot{TeamID: b.TeamID}
	for _, col := range b.Columns {
		s.Lists = append(s.Lists, col.List)
		s.Cards = append(s.Cards, col.Cards...)
	}
	s.Cards = append(s.Cards, b.Orphans...)
	return s
}
