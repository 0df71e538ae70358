package storage

import (
	"context"
	"encoding/json"

	"scrum-board/domain"
)

func (s *Storage) InsertComment(ctx context.Context, c domain.Comment) error {
	payload, err := json.Marshal(newCommentEntity(c))
	if err == nil {
		_, err = s.comments.AddEntity(ctx, payload, nil)
	}
	return storeErr(err)
}

// ListComments returns the thread of a card in storage order.
func (s *Storage) ListComments(ctx context.Context, cardID string) ([]domain.Comment, error) {
	comments := []domain.Comment{}
	err := list(ctx, s.comments, partitionFilter(cardID), func(data []byte) error {
		var ent commentEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		comments = append(comments, ent.comment())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Storage) GetComment(ctx context.Context, cardID, commentID string) (*domain.Comment, error) {
	resp, err := s.comments.GetEntity(ctx, cardID, commentID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent commentEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	c := ent.comment()
	return &c, nil
}

func (s *Storage) DeleteComment(ctx context.Context, cardID, commentID string) error {
	return deleteEntity(ctx, s.comments, cardID, commentID)
}
