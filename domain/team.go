package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultListNames are the columns created for every new team, left to right.
var DefaultListNames = [...]string{"Backlog", "To Do", "Doing", "Done"}

// Team groups members around a single board.
type Team struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"createdBy"`
	Members      []string  `json:"members"`
	MemberEmails []string  `json:"memberEmails"`
	CreatedAt    time.Time `json:"createdAt"`
	ETag         string    `json:"-"`
}

// List is a board column.
type List struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID belongs to the team.
func (t Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// WithMember returns a copy of the team including userID and email. The
// second result is false when both were already present.
func (t Team) WithMember(userID, email string) (Team, bool) {
	changed := false
	out := t
	if !t.HasMember(userID) {
		out.Members = append(append([]string(nil), t.Members...), userID)
		changed = true
	}
	if email != "" && !containsFold(t.MemberEmails, email) {
		out.MemberEmails = append(append([]string(nil), t.MemberEmails...), email)
		changed = true
	}
	return out, changed
}

// WithoutMember returns a copy of the team without userID and email.
func (t Team) WithoutMember(userID, email string) (Team, error) {
	if !t.HasMember(userID) {
		return t, ErrNotMember
	}
	out := t
	out.Members = make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if m != userID {
			out.Members = append(out.Members, m)
		}
	}
	out.MemberEmails = make([]string, 0, len(t.MemberEmails))
	for _, e := range t.MemberEmails {
		if email == "" || !strings.EqualFold(e, email) {
			out.MemberEmails = append(out.MemberEmails, e)
		}
	}
	return out, nil
}

func validateTeamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: team name is required", ErrValidation)
	}
	return name, nil
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
