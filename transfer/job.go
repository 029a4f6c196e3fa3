// Package transfer moves whole collections in and out of a data provider.
// Imports fan out into individual create and update mutations; exports page
// through list reads. Every item is tracked separately so one failure never
// aborts the batch.
package transfer

import (
	"sync"
	"time"

	"github.com/huykn/dataquery/types"
)

// Kind is the direction of a transfer.
type Kind string

const (
	KindImport Kind = "import"
	KindExport Kind = "export"
)

// ItemStatus is the outcome of one item.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
)

// JobStatus is the outcome of a whole transfer.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	// JobSuccess means every item succeeded.
	JobSuccess JobStatus = "success"
	// JobPartial means some items failed and some succeeded.
	JobPartial JobStatus = "partial"
	// JobFailed means no item succeeded, or the transfer could not start.
	JobFailed JobStatus = "failed"
)

// ItemResult is the outcome of the item at Index.
type ItemResult struct {
	Index  int
	Status ItemStatus
	// Operation is the write issued for an imported item.
	Operation types.Operation
	ID        types.ID
	Err       error
}

// Summary counts item outcomes.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Pending   int
}

// Job tracks one transfer until it is acknowledged.
type Job struct {
	ID       string
	Kind     Kind
	Resource string

	mu        sync.RWMutex
	items     []types.Record
	results   []ItemResult
	status    JobStatus
	err       error
	truncated bool
	started   time.Time
	finished  time.Time
	done      chan struct{}
}

func newJob(id string, kind Kind, resource string, now time.Time) *Job {
	return &Job{
		ID:       id,
		Kind:     kind,
		Resource: resource,
		status:   JobRunning,
		started:  now,
		done:     make(chan struct{}),
	}
}

// start records the items of the job, all pending.
func (j *Job) start(items []types.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.items = items
	j.results = make([]ItemResult, len(items))
	for i := range j.results {
		j.results[i] = ItemResult{Index: i, Status: ItemPending}
	}
}

func (j *Job) settle(r ItemResult) Summary {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[r.Index] = r
	return j.summaryLocked()
}

func (j *Job) markTruncated(v bool) {
	j.mu.Lock()
	j.truncated = v
	j.mu.Unlock()
}

func (j *Job) setItem(i int, rec types.Record) {
	j.mu.Lock()
	j.items[i] = rec
	j.mu.Unlock()
}

// finish computes the overall status. A non-nil err fails the job as a whole.
func (j *Job) finish(err error, now time.Time) Summary {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := j.summaryLocked()
	switch {
	case err != nil:
		j.err = err
		j.status = JobFailed
	case s.Failed == 0 && s.Pending == 0:
		j.status = JobSuccess
	case s.Succeeded == 0:
		j.status = JobFailed
	default:
		j.status = JobPartial
	}
	j.finished = now
	close(j.done)
	return s
}

func (j *Job) summaryLocked() Summary {
	s := Summary{Total: len(j.results)}
	for _, r := range j.results {
		switch r.Status {
		case ItemSuccess:
			s.Succeeded++
		case ItemFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// Status returns the overall status.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Err returns the error that failed the job as a whole, if any.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Results returns per-item outcomes ordered by original index.
func (j *Job) Results() []ItemResult {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]ItemResult(nil), j.results...)
}

// Items returns the records of the job. For an export these are the mapped
// records, in the order they were read.
func (j *Job) Items() []types.Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]types.Record(nil), j.items...)
}

// Records returns the items that succeeded, in order.
func (j *Job) Records() []types.Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]types.Record, 0, len(j.items))
	for i, r := range j.results {
		if r.Status == ItemSuccess {
			out = append(out, j.items[i])
		}
	}
	return out
}

// Failed returns the indexes of failed items.
func (j *Job) Failed() []int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []int
	for _, r := range j.results {
		if r.Status == ItemFailed {
			out = append(out, r.Index)
		}
	}
	return out
}

// Summary counts item outcomes.
func (j *Job) Summary() Summary {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.summaryLocked()
}

// Truncated reports whether an export stopped at its item cap.
func (j *Job) Truncated() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.truncated
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Duration returns how long the job ran, or has been running.
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.finished.IsZero() {
		return time.Since(j.started)
	}
	return j.finished.Sub(j.started)
}
