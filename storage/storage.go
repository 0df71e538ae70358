package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"scrum-board/domain"
)

// table is the subset of *aztables.Client used by Storage.
type table interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, o *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

// Tables names every table the board uses.
type Tables struct {
	Teams       string
	Memberships string
	Lists       string
	Cards       string
	Comments    string
	Sprints     string
	Activities  string
	Users       string
}

// Storage provides access to the board tables and the activity queue.
type Storage struct {
	teams       table
	memberships table
	lists       table
	cards       table
	comments    table
	sprints     table
	activities  table
	users       table
	activityQ   queue
	now         func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, activityQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, activityQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		teams:       svc.NewClient(tables.Teams),
		memberships: svc.NewClient(tables.Memberships),
		lists:       svc.NewClient(tables.Lists),
		cards:       svc.NewClient(tables.Cards),
		comments:    svc.NewClient(tables.Comments),
		sprints:     svc.NewClient(tables.Sprints),
		activities:  svc.NewClient(tables.Activities),
		users:       svc.NewClient(tables.Users),
		activityQ:   azureQueue{client: aq},
		now:         time.Now,
	}, nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func isNotFound(err error) bool { return statusCode(err) == http.StatusNotFound }

// storeErr maps table status codes onto domain errors.
func storeErr(err error) error {
	switch statusCode(err) {
	case http.StatusNotFound:
		return errors.Join(domain.ErrNotFound, err)
	case http.StatusPreconditionFailed, http.StatusConflict:
		return errors.Join(domain.ErrConcurrencyConflict, err)
	}
	return err
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func partitionFilter(pk string) string {
	return "PartitionKey eq " + quote(pk)
}

// list collects every entity matching filter.
func list(ctx context.Context, t table, filter string, fn func([]byte) error) error {
	pager := t.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func deleteEntity(ctx context.Context, t table, pk, rk string) error {
	_, err := t.DeleteEntity(ctx, pk, rk, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func mergeEntity(ctx context.Context, t table, payload []byte) error {
	et := azcore.ETagAny
	_, err := t.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return storeErr(err)
}

func replaceEntity(ctx context.Context, t table, payload []byte, etag string) error {
	et := azcore.ETag(etag)
	if etag == "" {
		et = azcore.ETagAny
	}
	_, err := t.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return storeErr(err)
}
