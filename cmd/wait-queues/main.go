package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

type queueList []string

func (q *queueList) String() string {
	if q == nil {
		return ""
	}
	return strings.Join(*q, ",")
}

func (q *queueList) Set(value string) error {
	if value == "" {
		return errors.New("queue name cannot be empty")
	}
	*q = append(*q, value)
	return nil
}

// pendingCounter reports the approximate number of messages left in a queue.
type pendingCounter func(ctx context.Context) (int32, error)

func azureCounter(connStr, name string) (pendingCounter, error) {
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    30 * time.Second,
				RetryDelay:    time.Second,
				MaxRetryDelay: 5 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (int32, error) {
		resp, err := client.GetProperties(ctx, nil)
		if err != nil {
			return 0, err
		}
		if resp.ApproximateMessagesCount == nil {
			return 0, nil
		}
		return *resp.ApproximateMessagesCount, nil
	}, nil
}

// waitDrained returns once every queue was empty for stableRequired
// consecutive polls.
func waitDrained(ctx context.Context, interval time.Duration, stableRequired int, queues map[string]pendingCounter) error {
	stableRequired = max(stableRequired, 1)
	stable := make(map[string]int, len(queues))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("waiting for %d queue(s) to drain", len(queues))
	for {
		done := true
		for name, count := range queues {
			n, err := count(ctx)
			if err != nil {
				return fmt.Errorf("failed to get properties for %s: %w", name, err)
			}
			if n > 0 {
				log.WithFields(log.Fields{"queue": name, "pending": n}).Info("queue not drained")
				stable[name] = 0
				done = false
				continue
			}
			stable[name]++
			if stable[name] < stableRequired {
				done = false
			}
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func main() {
	var (
		connStr        string
		timeout        time.Duration
		interval       time.Duration
		stableRequired int
		queues         queueList
	)
	flag.StringVar(&connStr, "connection-string", os.Getenv("STORAGE_CONNECTION_STRING"), "Azure Storage connection string")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to wait for queues to drain")
	flag.DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	flag.IntVar(&stableRequired, "stable", 3, "number of consecutive empty polls required per queue")
	flag.Var(&queues, "queue", "queue name to monitor (repeatable, defaults to ACTIVITY_QUEUE)")
	flag.Parse()

	if connStr == "" {
		log.Fatal("connection-string is required")
	}
	if len(queues) == 0 {
		if q := os.Getenv("ACTIVITY_QUEUE"); q != "" {
			queues = append(queues, q)
		}
	}
	if len(queues) == 0 {
		log.Fatal("at least one queue must be specified")
	}

	counters := make(map[string]pendingCounter, len(queues))
	for _, name := range queues {
		c, err := azureCounter(connStr, name)
		if err != nil {
			log.Fatalf("failed to create client for %s: %v", name, err)
		}
		counters[name] = c
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := waitDrained(ctx, interval, stableRequired, counters); err != nil {
		log.Fatalf("queue wait failed: %v", err)
	}
	log.Info("all queues drained")
}
