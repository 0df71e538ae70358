package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

func respErr(code int) error {
	return &azcore.ResponseError{
		StatusCode: code,
		ErrorCode:  http.StatusText(code),
		RawResponse: &http.Response{
			StatusCode: code,
			Status:     http.StatusText(code),
			Body:       http.NoBody,
			Request:    &http.Request{Method: http.MethodGet, URL: &url.URL{Scheme: "https", Host: "fake.table.local"}},
		},
	}
}

type fakeRow struct {
	props map[string]any
	etag  azcore.ETag
}

type fakeTable struct {
	mu      sync.Mutex
	rows    map[string]fakeRow
	version int
	txCalls int
	// afterGet runs outside the lock after every GetEntity.
	afterGet func(pk, rk string)
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]fakeRow{}}
}

func rowKey(pk, rk string) string { return pk + "\x00" + rk }

func decodeProps(entity []byte) (map[string]any, string, string) {
	var props map[string]any
	_ = json.Unmarshal(entity, &props)
	pk, _ := props["PartitionKey"].(string)
	rk, _ := props["RowKey"].(string)
	return props, pk, rk
}

func (f *fakeTable) nextETag() azcore.ETag {
	f.version++
	return azcore.ETag("W/\"" + strconv.Itoa(f.version) + "\"")
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	row, ok := f.rows[rowKey(pk, rk)]
	f.mu.Unlock()
	if !ok {
		return aztables.GetEntityResponse{}, respErr(http.StatusNotFound)
	}
	data, _ := json.Marshal(row.props)
	if f.afterGet != nil {
		f.afterGet(pk, rk)
	}
	return aztables.GetEntityResponse{ETag: row.etag, Value: data}, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, pk, rk := decodeProps(entity)
	if _, ok := f.rows[rowKey(pk, rk)]; ok {
		return aztables.AddEntityResponse{}, respErr(http.StatusConflict)
	}
	f.rows[rowKey(pk, rk)] = fakeRow{props: props, etag: f.nextETag()}
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, entity []byte, o *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, pk, rk := decodeProps(entity)
	f.rows[rowKey(pk, rk)] = fakeRow{props: props, etag: f.nextETag()}
	return aztables.UpsertEntityResponse{}, nil
}

func (f *fakeTable) update(entity []byte, ifMatch *azcore.ETag, mode aztables.UpdateMode) error {
	props, pk, rk := decodeProps(entity)
	row, ok := f.rows[rowKey(pk, rk)]
	if !ok {
		return respErr(http.StatusNotFound)
	}
	if ifMatch != nil && *ifMatch != azcore.ETagAny && *ifMatch != row.etag {
		return respErr(http.StatusPreconditionFailed)
	}
	if mode == aztables.UpdateModeMerge {
		merged := map[string]any{}
		for k, v := range row.props {
			merged[k] = v
		}
		for k, v := range props {
			merged[k] = v
		}
		props = merged
	}
	f.rows[rowKey(pk, rk)] = fakeRow{props: props, etag: f.nextETag()}
	return nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ifMatch *azcore.ETag
	mode := aztables.UpdateModeMerge
	if o != nil {
		ifMatch = o.IfMatch
		mode = o.UpdateMode
	}
	return aztables.UpdateEntityResponse{}, f.update(entity, ifMatch, mode)
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[rowKey(pk, rk)]; !ok {
		return aztables.DeleteEntityResponse{}, respErr(http.StatusNotFound)
	}
	delete(f.rows, rowKey(pk, rk))
	return aztables.DeleteEntityResponse{}, nil
}

// matches understands the single "Field eq 'value'" filters Storage builds.
func matches(props map[string]any, filter string) bool {
	field, value, ok := strings.Cut(filter, " eq ")
	if !ok {
		return true
	}
	value = strings.ReplaceAll(strings.Trim(value, "'"), "''", "'")
	got, _ := props[field].(string)
	return got == value
}

func (f *fakeTable) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			keys := make([]string, 0, len(f.rows))
			for k := range f.rows {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var resp aztables.ListEntitiesResponse
			for _, k := range keys {
				row := f.rows[k]
				if o != nil && o.Filter != nil && !matches(row.props, *o.Filter) {
					continue
				}
				data, _ := json.Marshal(row.props)
				resp.Entities = append(resp.Entities, data)
			}
			return resp, nil
		},
	})
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	for _, a := range actions {
		_, pk, rk := decodeProps(a.Entity)
		row, ok := f.rows[rowKey(pk, rk)]
		if !ok {
			return aztables.TransactionResponse{}, respErr(http.StatusNotFound)
		}
		if a.IfMatch != nil && *a.IfMatch != azcore.ETagAny && *a.IfMatch != row.etag {
			return aztables.TransactionResponse{}, respErr(http.StatusPreconditionFailed)
		}
	}
	for _, a := range actions {
		if err := f.update(a.Entity, nil, aztables.UpdateModeMerge); err != nil {
			return aztables.TransactionResponse{}, err
		}
	}
	return aztables.TransactionResponse{}, nil
}

func (f *fakeTable) props(pk, rk string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[rowKey(pk, rk)].props
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []queueMessage
	deleted  []string
	seq      int
}

func (q *fakeQueue) Enqueue(ctx context.Context, text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.messages = append(q.messages, queueMessage{
		ID:           "m" + strconv.Itoa(q.seq),
		PopReceipt:   "r" + strconv.Itoa(q.seq),
		Text:         text,
		DequeueCount: 1,
		InsertedAt:   time.Date(2024, 5, 1, 12, 0, q.seq, 0, time.UTC),
	})
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, max int32, visibility time.Duration) ([]queueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.messages)
	if int(max) < n {
		n = int(max)
	}
	out := append([]queueMessage(nil), q.messages[:n]...)
	q.messages = q.messages[n:]
	return out, nil
}

func (q *fakeQueue) Delete(ctx context.Context, id, popReceipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, id)
	return nil
}

type fakeTables struct {
	teams, memberships, lists, cards, comments, sprints, activities, users *fakeTable
	queue                                                                  *fakeQueue
}

func newTestStorage() (*Storage, fakeTables) {
	ft := fakeTables{
		teams: newFakeTable(), memberships: newFakeTable(), lists: newFakeTable(), cards: newFakeTable(),
		comments: newFakeTable(), sprints: newFakeTable(), activities: newFakeTable(), users: newFakeTable(),
		queue: &fakeQueue{},
	}
	s := &Storage{
		teams:       ft.teams,
		memberships: ft.memberships,
		lists:       ft.lists,
		cards:       ft.cards,
		comments:    ft.comments,
		sprints:     ft.sprints,
		activities:  ft.activities,
		users:       ft.users,
		activityQ:   ft.queue,
		now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return s, ft
}
