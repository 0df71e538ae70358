package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"scrum-board/domain"
)

// Snapshot runs the live board query: every list and card of the team.
func (s *Storage) Snapshot(ctx context.Context, teamID string) (domain.Snapshot, error) {
	lists, err := s.ListLists(ctx, teamID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{TeamID: teamID, Lists: lists, Cards: []domain.Card{}}
	err = list(ctx, s.cards, partitionFilter(teamID), func(data []byte) error {
		var ent cardEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		snap.Cards = append(snap.Cards, ent.card())
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// GetCard returns the card or nil when it does not exist.
func (s *Storage) GetCard(ctx context.Context, teamID, cardID string) (*domain.Card, error) {
	c, _, err := s.getCard(ctx, teamID, cardID)
	return c, err
}

func (s *Storage) getCard(ctx context.Context, teamID, cardID string) (*domain.Card, azcore.ETag, error) {
	resp, err := s.cards.GetEntity(ctx, teamID, cardID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var ent cardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, "", err
	}
	c := ent.card()
	return &c, resp.ETag, nil
}

func (s *Storage) InsertCard(ctx context.Context, c domain.Card) error {
	payload, err := json.Marshal(newCardEntity(c))
	if err == nil {
		_, err = s.cards.AddEntity(ctx, payload, nil)
	}
	return storeErr(err)
}

// UpdateCard merges the set fields of upd into the stored card.
func (s *Storage) UpdateCard(ctx context.Context, teamID, cardID string, upd domain.CardUpdate) error {
	payload, err := json.Marshal(newCardUpdateEntity(teamID, cardID, upd))
	if err != nil {
		return err
	}
	return mergeEntity(ctx, s.cards, payload)
}

// UpdateCardsGuarded applies ops in one entity group transaction. Each card
// is re-read first; if any no longer sits where the op expects, nothing is
// written. The transaction itself is conditioned on the ETags read, so a
// write racing between the check and the commit fails it as well.
func (s *Storage) UpdateCardsGuarded(ctx context.Context, teamID string, ops []domain.GuardedUpdate) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > domain.MaxGuardedUpdates {
		return fmt.Errorf("%d updates exceed the transaction limit of %d", len(ops), domain.MaxGuardedUpdates)
	}
	actions := make([]aztables.TransactionAction, 0, len(ops))
	for _, op := range ops {
		c, etag, err := s.getCard(ctx, teamID, op.CardID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("card %s: %w", op.CardID, domain.ErrNotFound)
		}
		if c.ListID != op.ExpectListID || c.Order != op.ExpectOrder {
			log.WithFields(log.Fields{
				"team": teamID, "card": op.CardID,
				"expectList": op.ExpectListID, "expectOrder": op.ExpectOrder,
				"list": c.ListID, "order": c.Order,
			}).Debug("guarded update precondition failed")
			return fmt.Errorf("card %s moved: %w", op.CardID, domain.ErrConcurrencyConflict)
		}
		payload, err := json.Marshal(newCardUpdateEntity(teamID, op.CardID, op.Update))
		if err != nil {
			return err
		}
		et := etag
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	_, err := s.cards.SubmitTransaction(ctx, actions, nil)
	return storeErr(err)
}

// DeleteCard removes a card. Its comments are left in place.
func (s *Storage) DeleteCard(ctx context.Context, teamID, cardID string) error {
	return deleteEntity(ctx, s.cards, teamID, cardID)
}
