package hooks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/provider"
	"github.com/huykn/dataquery/registry"
	"github.com/huykn/dataquery/types"
)

// countingProvider counts calls to a Memory provider. Gate, when set, is
// waited on by writes; Fail, when set, replaces the result of writes.
type countingProvider struct {
	*provider.Memory

	lists   int32
	ones    int32
	manys   int32
	writes  int32
	customs int32

	gate chan struct{}
	fail error
}

func (p *countingProvider) GetList(ctx context.Context, resource string, params types.ListParams) (*types.ListResult, error) {
	atomic.AddInt32(&p.lists, 1)
	return p.Memory.GetList(ctx, resource, params)
}

func (p *countingProvider) GetOne(ctx context.Context, resource string, id types.ID, meta types.Meta) (types.Record, error) {
	atomic.AddInt32(&p.ones, 1)
	return p.Memory.GetOne(ctx, resource, id, meta)
}

func (p *countingProvider) GetMany(ctx context.Context, resource string, ids []types.ID, meta types.Meta) ([]types.Record, error) {
	atomic.AddInt32(&p.manys, 1)
	return p.Memory.GetMany(ctx, resource, ids, meta)
}

func (p *countingProvider) write(ctx context.Context) error {
	atomic.AddInt32(&p.writes, 1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.fail
}

func (p *countingProvider) Create(ctx context.Context, resource string, payload types.Record, meta types.Meta) (types.Record, error) {
	if err := p.write(ctx); err != nil {
		return nil, err
	}
	return p.Memory.Create(ctx, resource, payload, meta)
}

func (p *countingProvider) Update(ctx context.Context, resource string, id types.ID, payload types.Record, meta types.Meta) (types.Record, error) {
	if err := p.write(ctx); err != nil {
		return nil, err
	}
	return p.Memory.Update(ctx, resource, id, payload, meta)
}

func (p *countingProvider) DeleteOne(ctx context.Context, resource string, id types.ID, meta types.Meta) error {
	if err := p.write(ctx); err != nil {
		return err
	}
	return p.Memory.DeleteOne(ctx, resource, id, meta)
}

func (p *countingProvider) DeleteMany(ctx context.Context, resource string, ids []types.ID, meta types.Meta) error {
	if err := p.write(ctx); err != nil {
		return err
	}
	return p.Memory.DeleteMany(ctx, resource, ids, meta)
}

func (p *countingProvider) Custom(ctx context.Context, req types.CustomRequest) (*types.CustomResponse, error) {
	atomic.AddInt32(&p.customs, 1)
	return p.Memory.Custom(ctx, req)
}

func (p *countingProvider) listCalls() int32 {
	return atomic.LoadInt32(&p.lists)
}

func seededPosts() *provider.Memory {
	return provider.NewMemory(provider.WithRecords("posts",
		types.Record{"id": "1", "title": "First", "status": "draft"},
		types.Record{"id": "2", "title": "Second", "status": "published"},
		types.Record{"id": "3", "title": "Third", "status": "draft"},
		types.Record{"id": "4", "title": "Fourth", "status": "rejected"},
		types.Record{"id": "5", "title": "Fifth", "status": "draft"},
	))
}

type fixture struct {
	client   *Client
	provider *countingProvider
	sink     *notify.Recorder
}

func newFixture(t *testing.T, resources ...registry.Resource) *fixture {
	t.Helper()

	opts := cache.DefaultOptions()
	opts.Timeout = time.Second
	opts.RetryCount = 0
	coordinator, err := cache.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { coordinator.Close() })

	if len(resources) == 0 {
		resources = []registry.Resource{{Name: "posts", Label: "Post"}}
	}
	reg, err := registry.New(resources...)
	require.NoError(t, err)

	p := &countingProvider{Memory: seededPosts()}
	sink := notify.NewRecorder()
	client, err := NewClient(Config{
		Coordinator: coordinator,
		Providers:   provider.Single(p),
		Registry:    reg,
		Sink:        sink,
	})
	require.NoError(t, err)

	return &fixture{client: client, provider: p, sink: sink}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var draftFilter = []types.Filter{{Field: "status", Operator: types.OpEq, Value: "draft"}}

func titles(records []types.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec["title"].(string))
	}
	return out
}
