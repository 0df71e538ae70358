package domain

import (
	"fmt"
	"strings"
	"time"
)

// SprintStatus is the lifecycle state of a sprint.
type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
)

// Sprint is a time-boxed iteration of a team.
type Sprint struct {
	ID          string       `json:"id"`
	TeamID      string       `json:"teamId"`
	Name        string       `json:"name"`
	Goal        string       `json:"goal,omitempty"`
	StartDate   time.Time    `json:"startDate"`
	EndDate     time.Time    `json:"endDate"`
	Status      SprintStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	ETag        string       `json:"-"`
}

// NewSprint is the input for sprint creation.
type NewSprint struct {
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

func (n NewSprint) validate() (NewSprint, error) {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return n, fmt.Errorf("%w: sprint name is required", ErrValidation)
	}
	if n.StartDate.IsZero() || n.EndDate.IsZero() {
		return n, fmt.Errorf("%w: sprint dates are required", ErrValidation)
	}
	if n.EndDate.Before(n.StartDate) {
		return n, fmt.Errorf("%w: sprint ends before it starts", ErrValidation)
	}
	return n, nil
}
