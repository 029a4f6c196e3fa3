package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/huykn/dataquery/cache"
)

// QueryResult is the state a read hook exposes.
type QueryResult[T any] struct {
	Data    T
	HasData bool
	Status  cache.Status
	// Err is set while the latest fetch has failed. Data keeps the last
	// successful value.
	Err        error
	IsStale    bool
	IsFetching bool
	UpdatedAt  time.Time
}

// IsLoading reports whether the query has no data yet and is fetching.
func (r QueryResult[T]) IsLoading() bool {
	return !r.HasData && r.IsFetching
}

// Query is an open read. It keeps its cache entry alive until Close.
type Query[T any] struct {
	sub *cache.Subscription
}

func newQuery[T any](sub *cache.Subscription) *Query[T] {
	return &Query[T]{sub: sub}
}

// Key returns the cache key of the query.
func (q *Query[T]) Key() cache.Key {
	return q.sub.Key()
}

// Result returns the current state without blocking.
func (q *Query[T]) Result() QueryResult[T] {
	return toResult[T](q.sub.Snapshot())
}

// Wait blocks until data is available or the fetch has failed for good.
// A failure is returned both in the result and as the error.
func (q *Query[T]) Wait(ctx context.Context) (QueryResult[T], error) {
	snap, err := q.sub.Wait(ctx)
	res := toResult[T](snap)
	if err != nil {
		return res, err
	}
	if snap.Status == cache.StatusError {
		return res, snap.Err
	}
	return res, nil
}

// WaitFresh is like Wait but does not accept stale data while a refetch of
// it is in flight.
func (q *Query[T]) WaitFresh(ctx context.Context) (QueryResult[T], error) {
	snap, err := q.sub.Await(ctx, cache.Snapshot.Current)
	res := toResult[T](snap)
	if err != nil {
		return res, err
	}
	if snap.Status == cache.StatusError {
		return res, snap.Err
	}
	return res, nil
}

// Refetch requests fresh data and waits for it. A fetch already in flight
// is joined.
func (q *Query[T]) Refetch(ctx context.Context) (QueryResult[T], error) {
	q.sub.Refetch()
	snap, err := q.sub.Await(ctx, func(s cache.Snapshot) bool {
		return s.Settled() && !s.IsFetching
	})
	res := toResult[T](snap)
	if err != nil {
		return res, err
	}
	return res, snap.Err
}

// Changes is signalled whenever the result changes.
func (q *Query[T]) Changes() <-chan struct{} {
	return q.sub.Changes()
}

// Close releases the query.
func (q *Query[T]) Close() {
	q.sub.Close()
}

func toResult[T any](s cache.Snapshot) QueryResult[T] {
	res := QueryResult[T]{
		HasData:    s.HasData,
		Status:     s.Status,
		Err:        s.Err,
		IsStale:    s.IsStale,
		IsFetching: s.IsFetching,
		UpdatedAt:  s.UpdatedAt,
	}
	if v, ok := s.Data.(T); ok {
		res.Data = v
	}
	return res
}

// decodeJSON restores a persisted value of type T.
func decodeJSON[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
