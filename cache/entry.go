package cache

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchFunc loads the value of an entry from its data provider.
type FetchFunc func(ctx context.Context) (any, error)

// DecodeFunc rebuilds a value from its persisted JSON form.
type DecodeFunc func(data []byte) (any, error)

// QueryOptions configure how an observed entry is fetched.
type QueryOptions struct {
	// Fetch loads the entry. The most recent observer's function is used
	// for refetches.
	Fetch FetchFunc

	// Decode restores persisted values. Entries without it are not
	// hydrated from the Store.
	Decode DecodeFunc

	// StaleTime overrides the coordinator StaleTime when positive.
	StaleTime time.Duration

	// RetryCount overrides the coordinator RetryCount when non-nil.
	RetryCount *int
}

// Snapshot is a read-only copy of an entry.
type Snapshot struct {
	Key            Key
	Status         Status
	Data           any
	HasData        bool
	Err            error
	UpdatedAt      time.Time
	ErrorUpdatedAt time.Time
	IsStale        bool
	IsFetching     bool
	Subscribers    int
	FailureCount   int
}

// Settled reports whether a waiter can stop waiting: data is available, or
// the latest fetch has failed and no retry is pending.
func (s Snapshot) Settled() bool {
	switch s.Status {
	case StatusSuccess:
		return true
	case StatusError:
		return !s.IsFetching
	}
	return false
}

// Current reports whether the snapshot is settled and not being revalidated.
// Stale data with a refetch in flight is not current.
func (s Snapshot) Current() bool {
	return s.Settled() && !(s.IsStale && s.IsFetching)
}

type entry struct {
	key Key
	id  string

	status         Status
	data           any
	hasData        bool
	err            error
	updatedAt      time.Time
	errorUpdatedAt time.Time
	invalidated    bool
	failures       int

	fetching bool
	issued   uint64 // sequence of the latest request issued
	applied  uint64 // sequence of the latest response applied
	version  uint64 // bumped whenever data changes

	opts QueryOptions
	subs map[*Subscription]struct{}
}

func newEntry(key Key) *entry {
	return &entry{
		key:    key,
		id:     key.String(),
		status: StatusIdle,
		subs:   make(map[*Subscription]struct{}),
	}
}

func (e *entry) staleTime(def time.Duration) time.Duration {
	if e.opts.StaleTime > 0 {
		return e.opts.StaleTime
	}
	return def
}

func (e *entry) isStale(now time.Time, staleTime time.Duration) bool {
	if e.invalidated || !e.hasData {
		return true
	}
	return now.Sub(e.updatedAt) >= e.staleTime(staleTime)
}

func (e *entry) snapshot(now time.Time, staleTime time.Duration) Snapshot {
	return Snapshot{
		Key:            e.key,
		Status:         e.status,
		Data:           e.data,
		HasData:        e.hasData,
		Err:            e.err,
		UpdatedAt:      e.updatedAt,
		ErrorUpdatedAt: e.errorUpdatedAt,
		IsStale:        e.isStale(now, staleTime),
		IsFetching:     e.fetching,
		Subscribers:    len(e.subs),
		FailureCount:   e.failures,
	}
}
