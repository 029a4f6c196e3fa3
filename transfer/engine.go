package transfer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/hooks"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/types"
)

var (
	// ErrJobNotFound is returned for an unknown or acknowledged job id.
	ErrJobNotFound = errors.New("transfer: job not found")

	// ErrJobRunning is returned when acknowledging a job that has not finished.
	ErrJobRunning = errors.New("transfer: job is still running")
)

// MapFunc transforms one record. Index is the record's position in the
// transfer.
type MapFunc func(rec types.Record, index int) (types.Record, error)

// Engine runs transfers and keeps them until they are acknowledged.
type Engine struct {
	client *hooks.Client
	sink   notify.Sink
	logger cache.Logger
	now    func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink overrides the client's notification sink.
func WithSink(sink notify.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLogger overrides the client's logger.
func WithLogger(logger cache.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine issuing requests through client.
func NewEngine(client *hooks.Client, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		sink:   client.Sink(),
		logger: client.Logger(),
		now:    time.Now,
		jobs:   make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) register(kind Kind, resource string) *Job {
	job := newJob(uuid.NewString(), kind, resource, e.now())
	e.mu.Lock()
	e.jobs[job.ID] = job
	e.mu.Unlock()
	return job
}

// Job returns a job that has not been acknowledged.
func (e *Engine) Job(id string) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Jobs returns unacknowledged jobs, oldest first.
func (e *Engine) Jobs() []*Job {
	e.mu.Lock()
	out := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		out = append(out, job)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].started.Before(out[j].started)
	})
	return out
}

// Acknowledge discards a finished job.
func (e *Engine) Acknowledge(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	select {
	case <-job.Done():
	default:
		return ErrJobRunning
	}
	delete(e.jobs, id)
	return nil
}

func notificationKey(kind Kind, resource string) string {
	return fmt.Sprintf("%s-%s", resource, kind)
}

func (e *Engine) progress(job *Job, s Summary) {
	processed := s.Succeeded + s.Failed
	e.sink.Open(notify.Notification{
		Key:       notificationKey(job.Kind, job.Resource),
		Type:      notify.TypeProgress,
		Message:   fmt.Sprintf("%sing: %d/%d", strcase.ToCamel(string(job.Kind)), processed, s.Total),
		Processed: processed,
		Total:     s.Total,
	})
}

func (e *Engine) fail(job *Job, err error) {
	e.sink.Open(notify.Notification{
		Key:         notificationKey(job.Kind, job.Resource),
		Type:        notify.TypeError,
		Message:     fmt.Sprintf("Failed to %s %s", job.Kind, job.Resource),
		Description: err.Error(),
		Kind:        types.KindOf(err),
	})
}

func (e *Engine) summarize(job *Job, s Summary) {
	n := notify.Notification{
		Key:         notificationKey(job.Kind, job.Resource),
		Type:        notify.TypeSuccess,
		Message:     fmt.Sprintf("%sed %d of %d %s", strcase.ToCamel(string(job.Kind)), s.Succeeded, s.Total, job.Resource),
		Description: fmt.Sprintf("%d succeeded, %d failed", s.Succeeded, s.Failed),
		Processed:   s.Succeeded + s.Failed,
		Total:       s.Total,
	}
	if job.Status() != JobSuccess {
		n.Type = notify.TypeError
		n.Kind = firstErrorKind(job)
	}
	e.sink.Open(n)
}

func firstErrorKind(job *Job) types.ErrorKind {
	for _, r := range job.Results() {
		if r.Err != nil {
			return types.KindOf(r.Err)
		}
	}
	return ""
}
