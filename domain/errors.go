package domain

import "errors"

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because the entity changed since it was read.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidMove             = errors.New("invalid move")
	ErrStaleBoard              = errors.New("board snapshot is stale")
	ErrActiveSprintExists      = errors.New("team already has an active sprint")
	ErrInvalidSprintTransition = errors.New("invalid sprint transition")
	ErrUserNotFound            = errors.New("user not found")
	ErrNotMember               = errors.New("user is not a team member")
	ErrForbidden               = errors.New("forbidden")
	ErrValidation              = errors.New("validation failed")
)
