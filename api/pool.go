package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"scrum-board/domain"
)

// ActivitySender hands feed entries to a bounded worker pool that enqueues
// them on the activity queue. It implements domain.ActivityLogger.
type ActivitySender struct {
	queue          ActivityQueue
	log            *log.Logger
	jobs           chan domain.Activity
	workers        int
	enqueueTimeout time.Duration
	handoffTimeout time.Duration
	wg             sync.WaitGroup
	closeOnce      sync.Once
}

type senderConfig struct {
	workers        int
	buffer         int
	enqueueTimeout time.Duration
	handoffTimeout time.Duration
}

func senderConfigFromEnv() senderConfig {
	return senderConfig{
		workers:        envInt("ACTIVITY_WORKERS", 8),
		buffer:         envInt("ACTIVITY_BUFFER", 1024),
		enqueueTimeout: envDur("ACTIVITY_ENQUEUE_TIMEOUT", 30*time.Second),
		handoffTimeout: envDur("ACTIVITY_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}
}

// NewActivitySender starts the workers configured by ACTIVITY_WORKERS,
// ACTIVITY_BUFFER and ACTIVITY_HANDOFF_TIMEOUT.
func NewActivitySender(queue ActivityQueue, logger *log.Logger) *ActivitySender {
	return newActivitySender(queue, logger, senderConfigFromEnv())
}

func newActivitySender(queue ActivityQueue, logger *log.Logger, cfg senderConfig) *ActivitySender {
	if logger == nil {
		panic("Logger is not initialized")
	}
	s := &ActivitySender{
		queue:          queue,
		log:            logger,
		jobs:           make(chan domain.Activity, cfg.buffer),
		workers:        cfg.workers,
		enqueueTimeout: cfg.enqueueTimeout,
		handoffTimeout: cfg.handoffTimeout,
	}
	for i := 0; i < cfg.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("activity sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.workers, cfg.buffer, cfg.enqueueTimeout, cfg.handoffTimeout)
	return s
}

// Log never blocks longer than the handoff timeout plus, when the pool is
// saturated, one inline enqueue.
func (s *ActivitySender) Log(ctx context.Context, a domain.Activity) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if s.tryHandoff(a) {
		return
	}
	s.log.WithField("team", a.TeamID).Warn("activity buffer saturated; enqueueing inline")
	s.enqueue(context.WithoutCancel(ctx), a, -1)
}

// Close stops accepting entries and waits for queued ones to be sent.
func (s *ActivitySender) Close() {
	s.closeOnce.Do(func() {
		close(s.jobs)
	})
	s.wg.Wait()
}

func (s *ActivitySender) worker(id int) {
	defer s.wg.Done()
	for a := range s.jobs {
		s.enqueue(context.Background(), a, id)
	}
}

func (s *ActivitySender) enqueue(parent context.Context, a domain.Activity, worker int) {
	ctx := parent
	if s.enqueueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.enqueueTimeout)
		defer cancel()
	}
	if err := s.queue.EnqueueActivity(ctx, a); err != nil {
		s.log.WithError(err).WithFields(log.Fields{"team": a.TeamID, "type": a.Type, "worker": worker}).Error("activity enqueue failed")
	}
}

func (s *ActivitySender) tryHandoff(a domain.Activity) bool {
	if ok, closed := trySendNonBlocking(s.jobs, a); closed {
		return false
	} else if ok {
		return true
	}

	if s.handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(s.handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(s.jobs, a, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan domain.Activity, a domain.Activity) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- a:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.Activity, a domain.Activity, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- a:
		return true, false
	case <-timer:
		return false, false
	}
}
