package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"scrum-board/domain"
)

// DefaultActivityLimit is the feed size when no limit is given.
const DefaultActivityLimit = 50

func activityRowKey(a domain.Activity) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-millis(a.CreatedAt), a.ID)
}

// InsertActivity stores a feed entry. CreatedAt is assigned here when the
// caller left it empty.
func (s *Storage) InsertActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	payload, err := json.Marshal(activityEntity{
		entity:        entity{PartitionKey: a.TeamID, RowKey: activityRowKey(a)},
		ID:            a.ID,
		Type:          a.Type,
		Description:   a.Description,
		UserID:        a.UserID,
		CreatedAt:     millis(a.CreatedAt),
		CreatedAtType: edmInt64,
	})
	if err == nil {
		// A redelivered message maps to the same row.
		_, err = s.activities.UpsertEntity(ctx, payload, nil)
	}
	return a, err
}

// ListActivities returns the newest entries of a team's feed.
func (s *Storage) ListActivities(ctx context.Context, teamID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	filter := partitionFilter(teamID)
	top := int32(limit)
	pager := s.activities.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	out := []domain.Activity{}
	for pager.More() && len(out) < limit {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent activityEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			out = append(out, ent.activity())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
