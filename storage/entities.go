package storage

import (
	"encoding/json"
	"time"

	"scrum-board/domain"
)

const (
	edmInt32 = "Edm.Int32"
	edmInt64 = "Edm.Int64"

	teamPartition = "team"
)

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type teamEntity struct {
	entity
	Name          string `json:"Name"`
	CreatedBy     string `json:"CreatedBy"`
	Members       string `json:"Members"`
	MemberEmails  string `json:"MemberEmails"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func newTeamEntity(t domain.Team) teamEntity {
	return teamEntity{
		entity:        entity{PartitionKey: teamPartition, RowKey: t.ID},
		Name:          t.Name,
		CreatedBy:     t.CreatedBy,
		Members:       encodeStrings(t.Members),
		MemberEmails:  encodeStrings(t.MemberEmails),
		CreatedAt:     millis(t.CreatedAt),
		CreatedAtType: edmInt64,
	}
}

func (e teamEntity) team(etag string) domain.Team {
	return domain.Team{
		ID:           e.RowKey,
		Name:         e.Name,
		CreatedBy:    e.CreatedBy,
		Members:      decodeStrings(e.Members),
		MemberEmails: decodeStrings(e.MemberEmails),
		CreatedAt:    fromMillis(e.CreatedAt),
		ETag:         etag,
	}
}

// membershipEntity indexes teams by user: PartitionKey is the user id.
type membershipEntity struct {
	entity
	JoinedAt     int64  `json:"JoinedAt,string"`
	JoinedAtType string `json:"JoinedAt@odata.type"`
}

type listEntity struct {
	entity
	Name          string `json:"Name"`
	Order         int    `json:"Order"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func newListEntity(l domain.List) listEntity {
	return listEntity{
		entity:        entity{PartitionKey: l.TeamID, RowKey: l.ID},
		Name:          l.Name,
		Order:         l.Order,
		CreatedAt:     millis(l.CreatedAt),
		CreatedAtType: edmInt64,
	}
}

func (e listEntity) list() domain.List {
	return domain.List{ID: e.RowKey, TeamID: e.PartitionKey, Name: e.Name, Order: e.Order, CreatedAt: fromMillis(e.CreatedAt)}
}

type cardEntity struct {
	entity
	ListID        string `json:"ListId"`
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Order         int    `json:"Order"`
	OrderType     string `json:"Order@odata.type,omitempty"`
	Priority      string `json:"Priority"`
	Tags          string `json:"Tags"`
	CreatedBy     string `json:"CreatedBy"`
	CreatedByName string `json:"CreatedByName"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

func newCardEntity(c domain.Card) cardEntity {
	return cardEntity{
		entity:        entity{PartitionKey: c.TeamID, RowKey: c.ID},
		ListID:        c.ListID,
		Title:         c.Title,
		Description:   c.Description,
		Order:         c.Order,
		OrderType:     edmInt32,
		Priority:      string(c.Priority),
		Tags:          encodeStrings(c.Tags),
		CreatedBy:     c.CreatedBy,
		CreatedByName: c.CreatedByName,
		CreatedAt:     millis(c.CreatedAt),
		CreatedAtType: edmInt64,
		UpdatedAt:     millis(c.UpdatedAt),
		UpdatedAtType: edmInt64,
	}
}

func (e cardEntity) card() domain.Card {
	return domain.Card{
		ID:            e.RowKey,
		TeamID:        e.PartitionKey,
		ListID:        e.ListID,
		Title:         e.Title,
		Description:   e.Description,
		Order:         e.Order,
		Priority:      domain.Priority(e.Priority),
		Tags:          decodeStrings(e.Tags),
		CreatedBy:     e.CreatedBy,
		CreatedByName: e.CreatedByName,
		CreatedAt:     fromMillis(e.CreatedAt),
		UpdatedAt:     fromMillis(e.UpdatedAt),
	}
}

// cardUpdateEntity carries a merge for a card; nil fields are not sent.
type cardUpdateEntity struct {
	entity
	ListID        *string `json:"ListId,omitempty"`
	Title         *string `json:"Title,omitempty"`
	Description   *string `json:"Description,omitempty"`
	Order         *int    `json:"Order,omitempty"`
	OrderType     *string `json:"Order@odata.type,omitempty"`
	Priority      *string `json:"Priority,omitempty"`
	Tags          *string `json:"Tags,omitempty"`
	UpdatedAt     *int64  `json:"UpdatedAt,omitempty,string"`
	UpdatedAtType *string `json:"UpdatedAt@odata.type,omitempty"`
}

func newCardUpdateEntity(teamID, cardID string, u domain.CardUpdate) cardUpdateEntity {
	ent := cardUpdateEntity{
		entity:      entity{PartitionKey: teamID, RowKey: cardID},
		ListID:      u.ListID,
		Title:       u.Title,
		Description: u.Description,
		Order:       u.Order,
	}
	if u.Order != nil {
		t := edmInt32
		ent.OrderType = &t
	}
	if u.Priority != nil {
		p := string(*u.Priority)
		ent.Priority = &p
	}
	if u.Tags != nil {
		tags := encodeStrings(*u.Tags)
		ent.Tags = &tags
	}
	if u.UpdatedAt != nil {
		ms := millis(*u.UpdatedAt)
		t := edmInt64
		ent.UpdatedAt = &ms
		ent.UpdatedAtType = &t
	}
	return ent
}

type commentEntity struct {
	entity
	Text          string `json:"Text"`
	Author        string `json:"Author"`
	AuthorID      string `json:"AuthorId"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func newCommentEntity(c domain.Comment) commentEntity {
	return commentEntity{
		entity:        entity{PartitionKey: c.CardID, RowKey: c.ID},
		Text:          c.Text,
		Author:        c.Author,
		AuthorID:      c.AuthorID,
		CreatedAt:     millis(c.CreatedAt),
		CreatedAtType: edmInt64,
	}
}

func (e commentEntity) comment() domain.Comment {
	return domain.Comment{
		ID:        e.RowKey,
		CardID:    e.PartitionKey,
		Text:      e.Text,
		Author:    e.Author,
		AuthorID:  e.AuthorID,
		CreatedAt: fromMillis(e.CreatedAt),
	}
}

type sprintEntity struct {
	entity
	Name            string `json:"Name"`
	Goal            string `json:"Goal"`
	Status          string `json:"Status"`
	StartDate       int64  `json:"StartDate,string"`
	StartDateType   string `json:"StartDate@odata.type"`
	EndDate         int64  `json:"EndDate,string"`
	EndDateType     string `json:"EndDate@odata.type"`
	CreatedAt       int64  `json:"CreatedAt,string"`
	CreatedAtType   string `json:"CreatedAt@odata.type"`
	StartedAt       int64  `json:"StartedAt,string"`
	StartedAtType   string `json:"StartedAt@odata.type"`
	CompletedAt     int64  `json:"CompletedAt,string"`
	CompletedAtType string `json:"CompletedAt@odata.type"`
}

func optionalMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return millis(*t)
}

func optionalTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := fromMillis(ms)
	return &t
}

func newSprintEntity(s domain.Sprint) sprintEntity {
	return sprintEntity{
		entity:          entity{PartitionKey: s.TeamID, RowKey: s.ID},
		Name:            s.Name,
		Goal:            s.Goal,
		Status:          string(s.Status),
		StartDate:       millis(s.StartDate),
		StartDateType:   edmInt64,
		EndDate:         millis(s.EndDate),
		EndDateType:     edmInt64,
		CreatedAt:       millis(s.CreatedAt),
		CreatedAtType:   edmInt64,
		StartedAt:       optionalMillis(s.StartedAt),
		StartedAtType:   edmInt64,
		CompletedAt:     optionalMillis(s.CompletedAt),
		CompletedAtType: edmInt64,
	}
}

func (e sprintEntity) sprint(etag string) domain.Sprint {
	return domain.Sprint{
		ID:          e.RowKey,
		TeamID:      e.PartitionKey,
		Name:        e.Name,
		Goal:        e.Goal,
		Status:      domain.SprintStatus(e.Status),
		StartDate:   fromMillis(e.StartDate),
		EndDate:     fromMillis(e.EndDate),
		CreatedAt:   fromMillis(e.CreatedAt),
		StartedAt:   optionalTime(e.StartedAt),
		CompletedAt: optionalTime(e.CompletedAt),
		ETag:        etag,
	}
}

// activityEntity rows sort newest first: RowKey is an inverted timestamp
// followed by the activity id.
type activityEntity struct {
	entity
	ID            string `json:"ActivityId"`
	Type          string `json:"Type"`
	Description   string `json:"Description"`
	UserID        string `json:"UserId"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func (e activityEntity) activity() domain.Activity {
	return domain.Activity{
		ID:          e.ID,
		TeamID:      e.PartitionKey,
		Type:        e.Type,
		Description: e.Description,
		UserID:      e.UserID,
		CreatedAt:   fromMillis(e.CreatedAt),
	}
}

type userEntity struct {
	entity
	Name          string `json:"Name"`
	Email         string `json:"Email"`
	Bio           string `json:"Bio"`
	Role          string `json:"Role"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

func newUserEntity(u domain.User) userEntity {
	return userEntity{
		entity:        entity{PartitionKey: u.ID, RowKey: u.ID},
		Name:          u.Name,
		Email:         u.Email,
		Bio:           u.Bio,
		Role:          u.Role,
		UpdatedAt:     millis(u.UpdatedAt),
		UpdatedAtType: edmInt64,
	}
}

func (e userEntity) user() domain.User {
	return domain.User{ID: e.RowKey, Name: e.Name, Email: e.Email, Bio: e.Bio, Role: e.Role, UpdatedAt: fromMillis(e.UpdatedAt)}
}
