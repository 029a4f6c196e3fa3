package transfer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/hooks"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/provider"
	"github.com/huykn/dataquery/registry"
	"github.com/huykn/dataquery/types"
)

type fixture struct {
	engine *Engine
	client *hooks.Client
	memory *provider.Memory
	sink   *notify.Recorder
}

func newFixture(t *testing.T, seed ...types.Record) *fixture {
	t.Helper()

	opts := cache.DefaultOptions()
	opts.RetryCount = 0
	opts.Timeout = time.Second
	coordinator, err := cache.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { coordinator.Close() })

	reg, err := registry.New(registry.Resource{Name: "posts"})
	require.NoError(t, err)

	memory := provider.NewMemory(provider.WithRecords("posts", seed...))
	sink := notify.NewRecorder()
	client, err := hooks.NewClient(hooks.Config{
		Coordinator: coordinator,
		Providers:   provider.Single(memory),
		Registry:    reg,
		Sink:        sink,
	})
	require.NoError(t, err)

	return &fixture{engine: NewEngine(client), client: client, memory: memory, sink: sink}
}

func numberedPosts(n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.Record{"id": fmt.Sprintf("%d", i+1), "title": fmt.Sprintf("Post %02d", i+1)}
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestImportPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	// Items 3 and 7 are empty and rejected by the provider.
	payload := `[
		{"title": "a"}, {"title": "b"}, {"title": "c"}, {},
		{"title": "e"}, {"title": "f"}, {"title": "g"}, {},
		{"title": "i"}, {"title": "j"}
	]`

	job, err := f.engine.Import(ctx, strings.NewReader(payload), ImportOptions{
		Resource:    "posts",
		Concurrency: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, JobPartial, job.Status())
	assert.Equal(t, []int{3, 7}, job.Failed())
	assert.Equal(t, Summary{Total: 10, Succeeded: 8, Failed: 2}, job.Summary())

	results := job.Results()
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		if i == 3 || i == 7 {
			assert.Equal(t, ItemFailed, r.Status)
			assert.ErrorIs(t, r.Err, types.ErrValidation)
			continue
		}
		assert.Equal(t, ItemSuccess, r.Status)
		assert.Equal(t, types.OperationCreate, r.Operation)
		assert.NotEmpty(t, r.ID)
	}

	// Successful items are kept.
	assert.Equal(t, 8, f.memory.Len("posts"))

	assert.Len(t, f.sink.ByType(notify.TypeProgress), 10)
	errs := f.sink.ByType(notify.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Imported 8 of 10 posts", errs[0].Message)
	assert.Equal(t, "8 succeeded, 2 failed", errs[0].Description)
	assert.Equal(t, types.KindValidation, errs[0].Kind)
}

func TestImportUpdatesRecordsWithIdentifier(t *testing.T) {
	f := newFixture(t, numberedPosts(2)...)
	ctx := testContext(t)

	payload := "id,title\n1,Renamed\n,Brand new\n"
	job, err := f.engine.Import(ctx, strings.NewReader(payload), ImportOptions{
		Resource: "posts",
		Parser:   CSVParser{},
		MapData: func(rec types.Record, _ int) (types.Record, error) {
			rec["imported"] = "yes"
			return rec, nil
		},
		RateLimit: 1000,
		Burst:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, JobSuccess, job.Status())

	results := job.Results()
	assert.Equal(t, types.OperationUpdate, results[0].Operation)
	assert.Equal(t, types.ID("1"), results[0].ID)
	assert.Equal(t, types.OperationCreate, results[1].Operation)

	rec, err := f.memory.GetOne(ctx, "posts", "1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", rec["title"])
	assert.Equal(t, "yes", rec["imported"])
	assert.Equal(t, 3, f.memory.Len("posts"))

	success := f.sink.ByType(notify.TypeSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "Imported 2 of 2 posts", success[0].Message)
}

func TestImportMapDataFailure(t *testing.T) {
	f := newFixture(t)

	job, err := f.engine.Import(testContext(t), strings.NewReader(`[{"title":"a"},{"title":"b"}]`), ImportOptions{
		Resource: "posts",
		MapData: func(rec types.Record, i int) (types.Record, error) {
			return nil, fmt.Errorf("cannot map %v", rec["title"])
		},
	})
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status())
	assert.Equal(t, []int{0, 1}, job.Failed())
	assert.Equal(t, 0, f.memory.Len("posts"))
}

func TestImportParseFailureAbortsBeforeAnyItem(t *testing.T) {
	f := newFixture(t)

	job, err := f.engine.Import(testContext(t), strings.NewReader(`{"not": "an array"`), ImportOptions{Resource: "posts"})
	require.ErrorIs(t, err, types.ErrValidation)
	require.NotNil(t, job)

	assert.Equal(t, JobFailed, job.Status())
	assert.Equal(t, err, job.Err())
	assert.Empty(t, job.Results())
	assert.Equal(t, 0, f.memory.Len("posts"))

	assert.Len(t, f.sink.Notifications(), 1)
	assert.Len(t, f.sink.ByType(notify.TypeError), 1)
}

func TestImportInvalidatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	q, err := f.client.UseList("posts", hooks.ListOptions{})
	require.NoError(t, err)
	defer q.Close()
	_, err = q.Wait(ctx)
	require.NoError(t, err)

	_, err = f.engine.Import(ctx, strings.NewReader(`[{"title":"a"},{"title":"b"},{"title":"c"}]`), ImportOptions{
		Resource:    "posts",
		Concurrency: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.client.Coordinator().Stats().Invalidations)
	require.Eventually(t, func() bool {
		return q.Result().Data.Total == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestImportRequiresResource(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Import(testContext(t), strings.NewReader(`[]`), ImportOptions{})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestExportPagesUntilTotal(t *testing.T) {
	f := newFixture(t, numberedPosts(45)...)

	job, err := f.engine.Export(testContext(t), ExportOptions{
		Resource: "posts",
		PageSize: 10,
		Sorters:  []types.Sort{{Field: "title", Order: types.SortAsc}},
	})
	require.NoError(t, err)

	assert.Equal(t, JobSuccess, job.Status())
	assert.False(t, job.Truncated())
	records := job.Records()
	require.Len(t, records, 45)
	assert.Equal(t, "Post 01", records[0]["title"])
	assert.Equal(t, "Post 45", records[44]["title"])
}

func TestExportAfterUpdateSeesTheWrite(t *testing.T) {
	f := newFixture(t, numberedPosts(25)...)
	ctx := testContext(t)
	opts := ExportOptions{Resource: "posts", PageSize: 10}

	job, err := f.engine.Export(ctx, opts)
	require.NoError(t, err)
	require.Len(t, job.Records(), 25)
	assert.Equal(t, "Post 01", job.Records()[0]["title"])

	update, err := f.client.UseUpdate("posts", hooks.MutationOptions{})
	require.NoError(t, err)
	_, err = update.Mutate(ctx, hooks.UpdateVariables{ID: "1", Values: types.Record{"title": "Changed"}})
	require.NoError(t, err)
	_, err = update.Mutate(ctx, hooks.UpdateVariables{ID: "21", Values: types.Record{"title": "Changed too"}})
	require.NoError(t, err)

	job, err = f.engine.Export(ctx, opts)
	require.NoError(t, err)
	records := job.Records()
	require.Len(t, records, 25)
	assert.Equal(t, "Changed", records[0]["title"])
	assert.Equal(t, "Post 02", records[1]["title"])
	assert.Equal(t, "Changed too", records[20]["title"])
}

func TestExportTruncatesAtMaxItemCount(t *testing.T) {
	f := newFixture(t, numberedPosts(45)...)

	job, err := f.engine.Export(testContext(t), ExportOptions{
		Resource:     "posts",
		PageSize:     10,
		MaxItemCount: 25,
	})
	require.NoError(t, err)

	assert.Equal(t, JobSuccess, job.Status())
	assert.True(t, job.Truncated())
	assert.Len(t, job.Records(), 25)
}

func TestExportMapsRecords(t *testing.T) {
	f := newFixture(t, numberedPosts(3)...)

	var buf bytes.Buffer
	job, err := f.engine.ExportTo(testContext(t), &buf, CSVWriter{Columns: []string{"id", "label"}}, ExportOptions{
		Resource: "posts",
		MapData: func(rec types.Record, i int) (types.Record, error) {
			if i == 1 {
				return nil, fmt.Errorf("skip")
			}
			return types.Record{"id": rec["id"], "label": strings.ToUpper(rec["title"].(string))}, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, JobPartial, job.Status())
	assert.Equal(t, []int{1}, job.Failed())
	assert.Equal(t, "id,label\n1,POST 01\n3,POST 03\n", buf.String())
}

func TestExportEmptyResource(t *testing.T) {
	f := newFixture(t)

	job, err := f.engine.Export(testContext(t), ExportOptions{Resource: "posts"})
	require.NoError(t, err)
	assert.Equal(t, JobSuccess, job.Status())
	assert.Empty(t, job.Records())
}

func TestAcknowledge(t *testing.T) {
	f := newFixture(t, numberedPosts(2)...)

	job, err := f.engine.Export(testContext(t), ExportOptions{Resource: "posts"})
	require.NoError(t, err)

	got, err := f.engine.Job(job.ID)
	require.NoError(t, err)
	assert.Same(t, job, got)
	assert.Len(t, f.engine.Jobs(), 1)

	require.NoError(t, f.engine.Acknowledge(job.ID))
	_, err = f.engine.Job(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, f.engine.Acknowledge(job.ID), ErrJobNotFound)
	assert.Empty(t, f.engine.Jobs())
}

func TestAcknowledgeRunningJob(t *testing.T) {
	f := newFixture(t)

	job := f.engine.register(KindImport, "posts")
	assert.ErrorIs(t, f.engine.Acknowledge(job.ID), ErrJobRunning)

	job.start(nil)
	job.finish(nil, time.Now())
	assert.NoError(t, f.engine.Acknowledge(job.ID))
}
