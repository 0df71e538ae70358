package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the optional urgency marker of a card.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is empty (no priority) or one of the known values.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Card is a single board item.
type Card struct {
	ID            string    `json:"id"`
	TeamID        string    `json:"teamId"`
	ListID        string    `json:"listId"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Order         int       `json:"order"`
	Priority      Priority  `json:"priority,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByName string    `json:"createdByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// CardUpdate carries a field-level merge for a card document. Nil fields are
// left untouched.
type CardUpdate struct {
	ListID      *string
	Order       *int
	Title       *string
	Description *string
	Priority    *Priority
	Tags        *[]string
	UpdatedAt   *time.Time
}

// Empty reports whether the update would not change anything.
func (u CardUpdate) Empty() bool {
	return u.ListID == nil && u.Order == nil && u.Title == nil && u.Description == nil &&
		u.Priority == nil && u.Tags == nil && u.UpdatedAt == nil
}

// Apply merges the update into a copy of c.
func (u CardUpdate) Apply(c Card) Card {
	if u.ListID != nil {
		c.ListID = *u.ListID
	}
	if u.Order != nil {
		c.Order = *u.Order
	}
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Priority != nil {
		c.Priority = *u.Priority
	}
	if u.Tags != nil {
		c.Tags = append([]string(nil), (*u.Tags)...)
	}
	if u.UpdatedAt != nil {
		c.UpdatedAt = *u.UpdatedAt
	}
	return c
}

// NewCard is the input for card creation.
type NewCard struct {
	ListID      string `json:"listId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CardEdit is the input for card edits from the card editor.
type CardEdit struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *Priority `json:"priority"`
	Tags        *[]string `json:"tags"`
}

func (e CardEdit) toUpdate(now time.Time) (CardUpdate, error) {
	upd := CardUpdate{Description: e.Description}
	if e.Title != nil {
		title := strings.TrimSpace(*e.Title)
		if title == "" {
			return CardUpdate{}, fmt.Errorf("%w: card title is required", ErrValidation)
		}
		upd.Title = &title
	}
	if e.Priority != nil {
		if !e.Priority.Valid() {
			return CardUpdate{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, *e.Priority)
		}
		upd.Priority = e.Priority
	}
	if e.Tags != nil {
		tags, err := NormalizeTags(*e.Tags)
		if err != nil {
			return CardUpdate{}, err
		}
		upd.Tags = &tags
	}
	if upd.Empty() {
		return CardUpdate{}, fmt.Errorf("%w: card edit had no fields", ErrValidation)
	}
	upd.UpdatedAt = &now
	return upd, nil
}

// NormalizeTags trims tags and rejects blanks and duplicates.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: blank tag", ErrValidation)
		}
		if _, dup := seen[t]; dup {
			return nil, fmt.Errorf("%w: duplicate tag %q", ErrValidation, t)
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
