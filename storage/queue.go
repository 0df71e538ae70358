package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"scrum-board/domain"
)

type queueMessage struct {
	ID           string
	PopReceipt   string
	Text         string
	DequeueCount int64
	InsertedAt   time.Time
}

type queue interface {
	Enqueue(ctx context.Context, text string) error
	Dequeue(ctx context.Context, max int32, visibility time.Duration) ([]queueMessage, error)
	Delete(ctx context.Context, id, popReceipt string) error
}

// azureQueue adapts *azqueue.QueueClient to queue.
type azureQueue struct {
	client *azqueue.QueueClient
}

func (q azureQueue) Enqueue(ctx context.Context, text string) error {
	_, err := q.client.EnqueueMessage(ctx, text, nil)
	return err
}

func (q azureQueue) Dequeue(ctx context.Context, max int32, visibility time.Duration) ([]queueMessage, error) {
	opts := &azqueue.DequeueMessagesOptions{NumberOfMessages: &max}
	if vis := int32(visibility / time.Second); vis > 0 {
		opts.VisibilityTimeout = &vis
	}
	resp, err := q.client.DequeueMessages(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]queueMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		msg := queueMessage{ID: *m.MessageID, PopReceipt: *m.PopReceipt}
		if m.MessageText != nil {
			msg.Text = *m.MessageText
		}
		if m.DequeueCount != nil {
			msg.DequeueCount = *m.DequeueCount
		}
		if m.InsertionTime != nil {
			msg.InsertedAt = m.InsertionTime.UTC()
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q azureQueue) Delete(ctx context.Context, id, popReceipt string) error {
	_, err := q.client.DeleteMessage(ctx, id, popReceipt, nil)
	return err
}

// ActivityMessage is a dequeued activity together with its queue receipt.
type ActivityMessage struct {
	ID           string
	PopReceipt   string
	DequeueCount int64
	// InsertedAt is assigned by the queue service.
	InsertedAt time.Time
	Activity   domain.Activity
	// Err is set when the message body could not be decoded.
	Err error
}

// EnqueueActivity sends a feed entry to the activity queue.
func (s *Storage) EnqueueActivity(ctx context.Context, a domain.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.activityQ.Enqueue(ctx, string(data))
}

// DequeueActivities receives up to max messages, hiding them for visibility.
func (s *Storage) DequeueActivities(ctx context.Context, max int32, visibility time.Duration) ([]ActivityMessage, error) {
	msgs, err := s.activityQ.Dequeue(ctx, max, visibility)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityMessage, 0, len(msgs))
	for _, m := range msgs {
		am := ActivityMessage{ID: m.ID, PopReceipt: m.PopReceipt, DequeueCount: m.DequeueCount, InsertedAt: m.InsertedAt}
		am.Err = json.Unmarshal([]byte(m.Text), &am.Activity)
		out = append(out, am)
	}
	return out, nil
}

// DeleteActivityMessage removes a processed message.
func (s *Storage) DeleteActivityMessage(ctx context.Context, id, popReceipt string) error {
	return s.activityQ.Delete(ctx, id, popReceipt)
}
