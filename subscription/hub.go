package subscription

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"scrum-board/domain"
)

// Source reads a team's board bypassing any cache.
type Source interface {
	FreshSnapshot(ctx context.Context, teamID string) (domain.Snapshot, error)
}

// Frame is the payload pushed to stream clients.
type Frame struct {
	TeamID  string       `json:"teamId"`
	Version int64        `json:"version"`
	Pending bool         `json:"pending"`
	Board   domain.Board `json:"board"`
}

type teamState struct {
	state   domain.BoardState
	version int64
	clients map[chan []byte]struct{}
}

// Hub keeps the live board of every team that has stream clients in this
// process and pushes a new frame whenever the board changes.
type Hub struct {
	source         Source
	pendingTimeout time.Duration
	now            func() time.Time

	mu    sync.Mutex
	teams map[string]*teamState
}

func NewHub(source Source, pendingTimeout time.Duration) *Hub {
	return &Hub{
		source:         source,
		pendingTimeout: pendingTimeout,
		now:            time.Now,
		teams:          map[string]*teamState{},
	}
}

// Subscribe registers a client of teamID. The returned channel receives every
// frame after the initial one, which is returned directly.
func (h *Hub) Subscribe(ctx context.Context, teamID string) (<-chan []byte, []byte, func(), error) {
	h.mu.Lock()
	_, known := h.teams[teamID]
	h.mu.Unlock()

	var snap domain.Snapshot
	if !known {
		var err error
		snap, err = h.source.FreshSnapshot(ctx, teamID)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	ch := make(chan []byte, 8)
	h.mu.Lock()
	ts, ok := h.teams[teamID]
	if !ok {
		ts = &teamState{clients: map[chan []byte]struct{}{}}
		ts.version++
		snap.Version = ts.version
		ts.state = domain.BoardState{Snapshot: snap}
		h.teams[teamID] = ts
	}
	ts.clients[ch] = struct{}{}
	initial := h.frame(teamID, ts)
	h.mu.Unlock()

	cancel := func() { h.unsubscribe(teamID, ch) }
	return ch, initial, cancel, nil
}

func (h *Hub) unsubscribe(teamID string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.teams[teamID]
	if !ok {
		return
	}
	delete(ts.clients, ch)
	if len(ts.clients) == 0 {
		delete(h.teams, teamID)
	}
}

// Clients returns the number of stream clients of teamID.
func (h *Hub) Clients(teamID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts, ok := h.teams[teamID]; ok {
		return len(ts.clients)
	}
	return 0
}

// Refresh re-reads the board of teamID and pushes it to its clients.
func (h *Hub) Refresh(ctx context.Context, teamID string) error {
	h.mu.Lock()
	_, ok := h.teams[teamID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	snap, err := h.source.FreshSnapshot(ctx, teamID)
	if err != nil {
		return err
	}
	h.update(teamID, func(s domain.BoardState, version int64) domain.BoardState {
		snap.Version = version
		return s.Observe(snap)
	})
	return nil
}

// MoveStarted renders a move optimistically until a snapshot confirms it.
func (h *Hub) MoveStarted(teamID string, p domain.PendingMove) {
	h.update(teamID, func(s domain.BoardState, _ int64) domain.BoardState { return s.Begin(p) })
}

// MoveFailed drops the optimistic rendering of the team's pending move.
func (h *Hub) MoveFailed(teamID string) {
	h.update(teamID, func(s domain.BoardState, _ int64) domain.BoardState { return s.Fail() })
}

// ExpirePending clears pending moves outstanding longer than the timeout.
func (h *Hub) ExpirePending() {
	now := h.now()
	h.mu.Lock()
	var expired []string
	for id, ts := range h.teams {
		if ts.state.Pending != nil && ts.state.Expire(now, h.pendingTimeout).Pending == nil {
			expired = append(expired, id)
		}
	}
	h.mu.Unlock()
	for _, id := range expired {
		log.WithField("team", id).Warn("pending move was never confirmed; reverting to stored board")
		h.update(id, func(s domain.BoardState, _ int64) domain.BoardState { return s.Expire(now, h.pendingTimeout) })
	}
}

func (h *Hub) update(teamID string, fn func(domain.BoardState, int64) domain.BoardState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.teams[teamID]
	if !ok {
		return
	}
	ts.version++
	ts.state = fn(ts.state, ts.version)
	data := h.frame(teamID, ts)
	for ch := range ts.clients {
		select {
		case ch <- data:
		default:
			log.WithField("team", teamID).Debug("stream client is behind; frame dropped")
		}
	}
}

func (h *Hub) frame(teamID string, ts *teamState) []byte {
	data, err := json.Marshal(Frame{
		TeamID:  teamID,
		Version: ts.version,
		Pending: ts.state.Pending != nil,
		Board:   ts.state.View(),
	})
	if err != nil {
		log.WithError(err).WithField("team", teamID).Error("marshal board frame")
		return nil
	}
	return data
}
