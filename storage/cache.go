package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"scrum-board/domain"
)

// Change kinds published on the board updates channel.
const (
	ChangeCard     = "card"
	ChangeList     = "list"
	ChangeActivity = "activity"
)

// boardGenTTL outlives any snapshot read so a generation cannot reset mid-read.
const boardGenTTL = 24 * time.Hour

var errStaleSnapshot = errors.New("board changed during snapshot read")

// ChangeNotification tells subscribers that a team's board changed.
type ChangeNotification struct {
	TeamID   string `json:"teamId"`
	Kind     string `json:"kind"`
	EntityID string `json:"entityId,omitempty"`
	At       int64  `json:"at"`
}

type backend interface {
	Snapshot(ctx context.Context, teamID string) (domain.Snapshot, error)
	InsertList(ctx context.Context, l domain.List) error
	InsertCard(ctx context.Context, c domain.Card) error
	UpdateCard(ctx context.Context, teamID, cardID string, upd domain.CardUpdate) error
	UpdateCardsGuarded(ctx context.Context, teamID string, ops []domain.GuardedUpdate) error
	DeleteCard(ctx context.Context, teamID, cardID string) error
}

// Cache wraps a Storage instance with a Redis cache of board snapshots and
// publishes a change notification after every board write.
type Cache struct {
	*Storage
	base    backend
	redis   *redis.Client
	ttl     time.Duration
	channel string
	now     func() time.Time
}

// NewCache creates a caching Storage wrapper. Notifications go to channel.
func NewCache(base backend, client *redis.Client, ttl time.Duration, channel string) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{
		base:    base,
		redis:   client,
		ttl:     ttl,
		channel: channel,
		now:     time.Now,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

// Snapshot serves the board from Redis when present.
func (c *Cache) Snapshot(ctx context.Context, teamID string) (domain.Snapshot, error) {
	if snap, ok := c.loadSnapshot(ctx, teamID); ok {
		return snap, nil
	}
	return c.FreshSnapshot(ctx, teamID)
}

// FreshSnapshot bypasses the cache and refreshes it. The result is only
// cached when no board write for the team happened during the read.
func (c *Cache) FreshSnapshot(ctx context.Context, teamID string) (domain.Snapshot, error) {
	gen, genOK := c.generation(ctx, teamID)
	snap, err := c.base.Snapshot(ctx, teamID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if genOK {
		c.storeSnapshot(ctx, teamID, snap, gen)
	}
	return snap, nil
}

func (c *Cache) InsertList(ctx context.Context, l domain.List) error {
	if err := c.base.InsertList(ctx, l); err != nil {
		return err
	}
	c.changed(ctx, l.TeamID, ChangeList, l.ID)
	return nil
}

func (c *Cache) InsertCard(ctx context.Context, card domain.Card) error {
	if err := c.base.InsertCard(ctx, card); err != nil {
		return err
	}
	c.changed(ctx, card.TeamID, ChangeCard, card.ID)
	return nil
}

func (c *Cache) UpdateCard(ctx context.Context, teamID, cardID string, upd domain.CardUpdate) error {
	if err := c.base.UpdateCard(ctx, teamID, cardID, upd); err != nil {
		return err
	}
	c.changed(ctx, teamID, ChangeCard, cardID)
	return nil
}

func (c *Cache) UpdateCardsGuarded(ctx context.Context, teamID string, ops []domain.GuardedUpdate) error {
	if err := c.base.UpdateCardsGuarded(ctx, teamID, ops); err != nil {
		return err
	}
	var id string
	if len(ops) > 0 {
		id = ops[0].CardID
	}
	c.changed(ctx, teamID, ChangeCard, id)
	return nil
}

func (c *Cache) DeleteCard(ctx context.Context, teamID, cardID string) error {
	if err := c.base.DeleteCard(ctx, teamID, cardID); err != nil {
		return err
	}
	c.changed(ctx, teamID, ChangeCard, cardID)
	return nil
}

// Notify publishes a change without touching the snapshot cache.
func (c *Cache) Notify(ctx context.Context, teamID, kind, entityID string) {
	if c.redis == nil || c.channel == "" {
		return
	}
	payload, err := sonic.Marshal(ChangeNotification{TeamID: teamID, Kind: kind, EntityID: entityID, At: c.now().UnixMilli()})
	if err != nil {
		return
	}
	if err := c.redis.Publish(ctx, c.channel, payload).Err(); err != nil {
		log.WithError(err).WithFields(log.Fields{"team": teamID, "channel": c.channel}).Error("unable to publish board change")
	}
}

func (c *Cache) changed(ctx context.Context, teamID, kind, entityID string) {
	c.evict(ctx, teamID)
	c.Notify(ctx, teamID, kind, entityID)
}

func (c *Cache) loadSnapshot(ctx context.Context, teamID string) (domain.Snapshot, bool) {
	if c.redis == nil {
		return domain.Snapshot{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(teamID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(teamID)).Err()
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(teamID)).Err()
		return domain.Snapshot{}, false
	}
	return snap, true
}

// generation returns the team's write counter; a missing key reads as zero.
func (c *Cache) generation(ctx context.Context, teamID string) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, boardGenKey(teamID)).Int64()
	if err != nil && err != redis.Nil {
		log.WithError(err).WithField("team", teamID).Warn("unable to read board generation")
		return 0, false
	}
	return gen, true
}

// storeSnapshot writes snap only while the generation still equals gen.
func (c *Cache) storeSnapshot(ctx context.Context, teamID string, snap domain.Snapshot, gen int64) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		return
	}
	genKey := boardGenKey(teamID)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != gen {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, boardCacheKey(teamID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleSnapshot), errors.Is(err, redis.TxFailedErr):
		log.WithField("team", teamID).Debug("board changed during read; snapshot not cached")
	default:
		log.WithError(err).WithField("team", teamID).Warn("unable to cache board snapshot")
	}
}

func (c *Cache) evict(ctx context.Context, teamID string) {
	if c.redis == nil {
		return
	}
	genKey := boardGenKey(teamID)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, boardGenTTL)
		pipe.Del(ctx, boardCacheKey(teamID))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("team", teamID).Error("unable to evict board snapshot")
	}
}

func boardCacheKey(teamID string) string {
	return "board:" + teamID
}

func boardGenKey(teamID string) string {
	return "board-gen:" + teamID
}
