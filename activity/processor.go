package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"scrum-board/domain"
	"scrum-board/storage"
)

// Queue is the consumer side of the activity queue.
type Queue interface {
	DequeueActivities(ctx context.Context, max int32, visibility time.Duration) ([]storage.ActivityMessage, error)
	DeleteActivityMessage(ctx context.Context, id, popReceipt string) error
}

// Feed persists activities into the team feed.
type Feed interface {
	InsertActivity(ctx context.Context, a domain.Activity) (domain.Activity, error)
}

type changeNotifier interface {
	Notify(ctx context.Context, teamID, kind, entityID string)
}

// Options tune the dequeue loop.
type Options struct {
	BatchSize  int32
	Visibility time.Duration
	Idle       time.Duration
	// MaxDequeue drops messages that keep failing after this many deliveries.
	MaxDequeue int64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.Visibility <= 0 {
		o.Visibility = 30 * time.Second
	}
	if o.Idle <= 0 {
		o.Idle = time.Second
	}
	if o.MaxDequeue <= 0 {
		o.MaxDequeue = 5
	}
	return o
}

// Processor projects queued activities into the feed table.
type Processor struct {
	queue    Queue
	feed     Feed
	notifier changeNotifier
	opts     Options
	newID    func() string
}

// NewProcessor builds a processor. notifier may be nil.
func NewProcessor(q Queue, feed Feed, notifier changeNotifier, opts Options) *Processor {
	if q == nil || feed == nil {
		panic("activity processor requires a queue and a feed")
	}
	return &Processor{queue: q, feed: feed, notifier: notifier, opts: opts.withDefaults(), newID: uuid.NewString}
}

// Run drains the queue until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	log.Info("activity processor started")
	for {
		n, err := p.ProcessBatch(ctx)
		if ctx.Err() != nil {
			log.Info("activity processor stopped")
			return
		}
		if err != nil {
			log.WithError(err).Error("unable to receive activities")
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				log.Info("activity processor stopped")
				return
			case <-time.After(p.opts.Idle):
			}
		}
	}
}

// ProcessBatch handles one dequeue and returns the number of messages received.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := p.queue.DequeueActivities(ctx, p.opts.BatchSize, p.opts.Visibility)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		p.handle(ctx, m)
	}
	return len(msgs), nil
}

func (p *Processor) handle(ctx context.Context, m storage.ActivityMessage) {
	entry := log.WithFields(log.Fields{"message": m.ID, "dequeueCount": m.DequeueCount})
	if m.Err != nil {
		entry.WithError(m.Err).Warn("dropping malformed activity message")
		p.delete(ctx, m)
		return
	}
	a := m.Activity
	if a.TeamID == "" {
		entry.Warn("dropping activity without team")
		p.delete(ctx, m)
		return
	}
	if a.ID == "" {
		// Derive from the message id so a redelivery keeps its row.
		a.ID = m.ID
		if a.ID == "" {
			a.ID = p.newID()
		}
	}
	// The server timestamp is the time the queue accepted the entry.
	a.CreatedAt = m.InsertedAt
	stored, err := p.feed.InsertActivity(ctx, a)
	if err != nil {
		if m.DequeueCount >= p.opts.MaxDequeue {
			entry.WithError(err).Error("giving up on activity")
			p.delete(ctx, m)
			return
		}
		entry.WithError(err).Warn("unable to store activity, will retry")
		return
	}
	if p.notifier != nil {
		p.notifier.Notify(ctx, stored.TeamID, storage.ChangeActivity, stored.ID)
	}
	p.delete(ctx, m)
	entry.WithFields(log.Fields{"team": stored.TeamID, "type": stored.Type}).Debug("activity stored")
}

func (p *Processor) delete(ctx context.Context, m storage.ActivityMessage) {
	if err := p.queue.DeleteActivityMessage(ctx, m.ID, m.PopReceipt); err != nil {
		log.WithError(err).WithField("message", m.ID).Error("unable to delete activity message")
	}
}
