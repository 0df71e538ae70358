package domain

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID    string
	Name  string
	Email string
}

// DisplayName mirrors how the board labels people in activity descriptions.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}
