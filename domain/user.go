package domain

import (
	"fmt"
	"strings"
	"time"
)

// User is a profile document. Authentication itself lives elsewhere.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio,omitempty"`
	Role      string    `json:"role,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ProfileEdit is the input for profile updates.
type ProfileEdit struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Bio   *string `json:"bio"`
	Role  *string `json:"role"`
}

func (e ProfileEdit) apply(u User) (User, error) {
	if e.Name != nil {
		u.Name = strings.TrimSpace(*e.Name)
	}
	if e.Email != nil {
		email := strings.TrimSpace(*e.Email)
		if email != "" && !strings.Contains(email, "@") {
			return u, fmt.Errorf("%w: invalid email %q", ErrValidation, email)
		}
		u.Email = strings.ToLower(email)
	}
	if e.Bio != nil {
		u.Bio = *e.Bio
	}
	if e.Role != nil {
		u.Role = strings.TrimSpace(*e.Role)
	}
	return u, nil
}
