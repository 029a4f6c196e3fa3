package provider

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huykn/dataquery/types"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func setupSQL(t *testing.T, opts ...SQLOption) *SQL {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQL(context.Background(), db, opts...)
	require.NoError(t, err)

	ctx := context.Background()
	for _, rec := range []types.Record{
		{"id": "1", "title": "Hello", "status": "draft", "hits": 10},
		{"id": "2", "title": "World", "status": "published", "hits": 3},
		{"id": "3", "title": "hello again", "status": "draft", "hits": 7},
		{"id": "4", "title": "Bye", "status": "rejected", "hits": 1},
	} {
		_, err := s.Create(ctx, "posts", rec, nil)
		require.NoError(t, err)
	}
	return s
}

func TestSQLGetList(t *testing.T) {
	s := setupSQL(t)
	ctx := context.Background()

	res, err := s.GetList(ctx, "posts", types.ListParams{
		Filters: []types.Filter{{Field: "status", Operator: types.OpEq, Value: "draft"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"1", "3"}, ids(res.Data))

	res, err = s.GetList(ctx, "posts", types.ListParams{
		Filters:    []types.Filter{{Field: "hits", Operator: types.OpGte, Value: 3}},
		Sort:       []types.Sort{{Field: "hits", Order: types.SortDesc}},
		Pagination: &types.Pagination{Current: 1, PageSize: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"1", "3"}, ids(res.Data))

	res, err = s.GetList(ctx, "comments", types.ListParams{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Data)

	_, err = s.GetList(ctx, "posts", types.ListParams{
		Filters: []types.Filter{{Field: "status", Operator: "like", Value: "x"}},
	})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSQLGetOneAndMany(t *testing.T) {
	s := setupSQL(t)
	ctx := context.Background()

	rec, err := s.GetOne(ctx, "posts", "2", nil)
	require.NoError(t, err)
	assert.Equal(t, "World", rec["title"])

	_, err = s.GetOne(ctx, "posts", "9", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	many, err := s.GetMany(ctx, "posts", []types.ID{"3", "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, ids(many))

	_, err = s.GetMany(ctx, "posts", []types.ID{"1", "9"}, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSQLCreate(t *testing.T) {
	s := setupSQL(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "posts", types.Record{"title": "New"}, nil)
	require.NoError(t, err)
	id := types.IDOf(rec["id"])
	require.NotEmpty(t, id)

	stored, err := s.GetOne(ctx, "posts", id, nil)
	require.NoError(t, err)
	assert.Equal(t, "New", stored["title"])

	_, err = s.Create(ctx, "posts", types.Record{"id": "1", "title": "dup"}, nil)
	assert.ErrorIs(t, err, types.ErrConflict)

	_, err = s.Create(ctx, "posts", types.Record{}, nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSQLUpdate(t *testing.T) {
	s := setupSQL(t)
	ctx := context.Background()

	rec, err := s.Update(ctx, "posts", "1", types.Record{"id": "99", "title": "Changed"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", rec["id"])
	assert.Equal(t, "Changed", rec["title"])
	assert.Equal(t, "draft", rec["status"])

	stored, err := s.GetOne(ctx, "posts", "1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Changed", stored["title"])

	_, err = s.Update(ctx, "posts", "9", types.Record{"title": "x"}, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSQLDeleteManyIsAtomic(t *testing.T) {
	s := setupSQL(t)
	ctx := context.Background()

	err := s.DeleteMany(ctx, "posts", []types.ID{"1", "9"}, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	res, err := s.GetList(ctx, "posts", types.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)

	require.NoError(t, s.DeleteMany(ctx, "posts", []types.ID{"1", "2"}, nil))
	require.NoError(t, s.DeleteOne(ctx, "posts", "3", nil))

	res, err = s.GetList(ctx, "posts", types.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(res.Data))
}

func TestSQLCustomAndLogging(t *testing.T) {
	logger := &recordingLogger{}
	s := setupSQL(t, WithTable("documents"), WithQueryLogger(logger))
	s.HandleCustom("get", "/stats", func(ctx context.Context, req types.CustomRequest) (*types.CustomResponse, error) {
		return &types.CustomResponse{Data: "ok"}, nil
	})

	res, err := s.Custom(context.Background(), types.CustomRequest{Method: "GET", URL: "/stats"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Data)

	_, err = s.Custom(context.Background(), types.CustomRequest{Method: "post", URL: "/stats"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.NotEmpty(t, logger.lines)
}

func TestSQLCanceledContext(t *testing.T) {
	s := setupSQL(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetList(ctx, "posts", types.ListParams{})
	assert.ErrorIs(t, err, context.Canceled)
}
