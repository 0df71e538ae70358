package domain

import (
	"context"
	"strconv"
	"sync"
)

type fakeStore struct {
	mu          sync.Mutex
	teams       map[string]Team
	memberships map[string]map[string]bool
	lists       map[string]List
	cards       map[string]Card
	comments    map[string]Comment
	sprints     map[string]Sprint
	users       map[string]User
	etag        int

	failUpdate  map[string]error
	updateCalls []string
	guarded     [][]GuardedUpdate
	conflicts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:       map[string]Team{},
		memberships: map[string]map[string]bool{},
		lists:       map[string]List{},
		cards:       map[string]Card{},
		comments:    map[string]Comment{},
		sprints:     map[string]Sprint{},
		users:       map[string]User{},
		failUpdate:  map[string]error{},
	}
}

func (f *fakeStore) nextETag() string {
	f.etag++
	return strconv.Itoa(f.etag)
}

func (f *fakeStore) seedList(teamID, listID string, order int, cardIDs ...string) {
	f.lists[listID] = List{ID: listID, TeamID: teamID, Name: listID, Order: order}
	for i, id := range cardIDs {
		f.cards[id] = Card{ID: id, TeamID: teamID, ListID: listID, Title: id, Order: i}
	}
}

func (f *fakeStore) card(id string) Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cards[id]
}

func (f *fakeStore) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updateCalls...)
}

// team storage

func (f *fakeStore) InsertTeam(ctx context.Context, t Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ETag = f.nextETag()
	f.teams[t.ID] = t
	return nil
}

func (f *fakeStore) GetTeam(ctx context.Context, id string) (*Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.teams[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) UpdateTeam(ctx context.Context, t Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.teams[t.ID]
	if !ok {
		return ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		return ErrConcurrencyConflict
	}
	if cur.ETag != t.ETag {
		return ErrConcurrencyConflict
	}
	t.ETag = f.nextETag()
	f.teams[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTeam(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.teams, id)
	return nil
}

func (f *fakeStore) ListTeamIDsForUser(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.memberships[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) AddMembership(ctx context.Context, userID, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberships[userID] == nil {
		f.memberships[userID] = map[string]bool{}
	}
	f.memberships[userID][teamID] = true
	return nil
}

func (f *fakeStore) RemoveMembership(ctx context.Context, userID, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.memberships[userID], teamID)
	return nil
}

func (f *fakeStore) InsertList(ctx context.Context, l List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[l.ID] = l
	return nil
}

func (f *fakeStore) ListLists(ctx context.Context, teamID string) ([]List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []List
	for _, l := range f.lists {
		if l.TeamID == teamID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

// card storage

func (f *fakeStore) Snapshot(ctx context.Context, teamID string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{TeamID: teamID}
	for _, l := range f.lists {
		if l.TeamID == teamID {
			s.Lists = append(s.Lists, l)
		}
	}
	for _, c := range f.cards {
		if c.TeamID == teamID {
			s.Cards = append(s.Cards, c)
		}
	}
	return s, nil
}

func (f *fakeStore) GetCard(ctx context.Context, teamID, cardID string) (*Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[cardID]
	if !ok || c.TeamID != teamID {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) InsertCard(ctx context.Context, c Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[c.ID] = c
	return nil
}

func (f *fakeStore) UpdateCard(ctx context.Context, teamID, cardID string, upd CardUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, cardID)
	if err := f.failUpdate[cardID]; err != nil {
		return err
	}
	c, ok := f.cards[cardID]
	if !ok {
		return ErrNotFound
	}
	f.cards[cardID] = upd.Apply(c)
	return nil
}

func (f *fakeStore) DeleteCard(ctx context.Context, teamID, cardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cards, cardID)
	return nil
}

// txStore adds guarded updates on top of fakeStore.
type txStore struct{ *fakeStore }

func (f txStore) UpdateCardsGuarded(ctx context.Context, teamID string, ops []GuardedUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guarded = append(f.guarded, ops)
	for _, op := range ops {
		if err := f.failUpdate[op.CardID]; err != nil {
			return err
		}
		c, ok := f.cards[op.CardID]
		if !ok {
			return ErrNotFound
		}
		if c.ListID != op.ExpectListID || c.Order != op.ExpectOrder {
			return ErrConcurrencyConflict
		}
	}
	for _, op := range ops {
		f.cards[op.CardID] = op.Update.Apply(f.cards[op.CardID])
	}
	return nil
}

// comment storage

func (f *fakeStore) InsertComment(ctx context.Context, c Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
	return nil
}

func (f *fakeStore) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Comment
	for _, c := range f.comments {
		if c.CardID == cardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetComment(ctx context.Context, cardID, commentID string) (*Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[commentID]
	if !ok || c.CardID != cardID {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, cardID, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, commentID)
	return nil
}

// sprint storage

func (f *fakeStore) InsertSprint(ctx context.Context, s Sprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ETag = f.nextETag()
	f.sprints[s.ID] = s
	return nil
}

func (f *fakeStore) ListSprints(ctx context.Context, teamID string) ([]Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sprint
	for _, s := range f.sprints {
		if s.TeamID == teamID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSprint(ctx context.Context, teamID, id string) (*Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sprints[id]
	if !ok || s.TeamID != teamID {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) UpdateSprint(ctx context.Context, s Sprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.sprints[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.ETag != s.ETag {
		return ErrConcurrencyConflict
	}
	s.ETag = f.nextETag()
	f.sprints[s.ID] = s
	return nil
}

func (f *fakeStore) DeleteSprint(ctx context.Context, teamID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sprints, id)
	return nil
}

// user storage

func (f *fakeStore) GetUser(ctx context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeStore) UpsertUser(ctx context.Context, u User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

type recordedActivities struct {
	mu      sync.Mutex
	entries []Activity
}

func (r *recordedActivities) Log(ctx context.Context, a Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, a)
}

func (r *recordedActivities) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, a := range r.entries {
		out[i] = a.Type
	}
	return out
}

type recordingObserver struct {
	mu      sync.Mutex
	started []PendingMove
	failed  int
}

func (o *recordingObserver) MoveStarted(teamID string, p PendingMove) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, p)
}

func (o *recordingObserver) MoveFailed(teamID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}
