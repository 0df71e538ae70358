package domain

import "time"

// Comment is an append-only note on a card.
type Comment struct {
	ID        string    `json:"id"`
	CardID    string    `json:"cardId"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}
