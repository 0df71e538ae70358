package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"scrum-board/storage"
)

// SubscribeUpdates listens for board change notifications and refreshes the
// affected teams. Pending moves are expired on every tick. The go-redis
// PubSub reconnects and resubscribes on its own, so one subscription lives
// until ctx is done.
func SubscribeUpdates(ctx context.Context, rc *redis.Client, hub *Hub, channel string, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	sub := rc.Subscribe(ctx, channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.ExpirePending()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var n storage.ChangeNotification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil || n.TeamID == "" {
				log.WithField("payload", msg.Payload).Error("unable to parse board change")
				continue
			}
			if n.Kind == storage.ChangeActivity {
				continue
			}
			if err := hub.Refresh(ctx, n.TeamID); err != nil {
				log.WithError(err).WithField("team", n.TeamID).Error("refresh board")
			}
		}
	}
}
