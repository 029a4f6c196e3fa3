package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/types"
)

// MutationStatus is the lifecycle state of a Mutation.
type MutationStatus string

const (
	MutationIdle    MutationStatus = "idle"
	MutationLoading MutationStatus = "loading"
	MutationSuccess MutationStatus = "success"
	MutationError   MutationStatus = "error"
)

// MutationMode selects when cached data reflects a write.
type MutationMode int

const (
	// Pessimistic waits for the provider before touching the cache.
	Pessimistic MutationMode = iota
	// Optimistic rewrites cached data before the provider answers and
	// restores it if the write fails.
	Optimistic
)

// MutationOptions configure a mutation hook.
type MutationOptions struct {
	DataProviderName string
	Mode             MutationMode
	// Silent suppresses success notifications. Errors are always reported.
	Silent bool
	// SkipInvalidation leaves cached reads untouched on success. The caller
	// is expected to invalidate once it is done.
	SkipInvalidation bool
	// Sink overrides the client's notification sink for this mutation.
	Sink notify.Sink
	Meta types.Meta
}

// MutationState is the outcome of the latest Mutate call.
type MutationState[R any] struct {
	Status MutationStatus
	Data   R
	Err    error
	// Descriptor is what the latest successful write changed.
	Descriptor *types.MutationDescriptor
}

// UpdateVariables are the input of an update.
type UpdateVariables struct {
	ID     types.ID
	Values types.Record
}

// Mutation is a reusable write. Mutate may be called concurrently; State
// reflects the call that finished last.
type Mutation[V, R any] struct {
	c    *Client
	t    target
	op   types.Operation
	opts MutationOptions
	sink notify.Sink

	call     func(ctx context.Context, v V) (R, error)
	affected func(v V, r R) []types.ID
	// optimistic applies provisional cache updates for v.
	optimistic func(v V) []cache.Optimistic

	mu    sync.Mutex
	state MutationState[R]
}

// State returns the state of the latest call.
func (m *Mutation[V, R]) State() MutationState[R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the mutation to idle.
func (m *Mutation[V, R]) Reset() {
	m.mu.Lock()
	m.state = MutationState[R]{Status: MutationIdle}
	m.mu.Unlock()
}

func (m *Mutation[V, R]) setState(s MutationState[R]) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Mutate calls the data provider once. On success the affected cache
// entries are invalidated; on failure nothing is invalidated and the error
// is both returned and sent to the notification sink.
func (m *Mutation[V, R]) Mutate(ctx context.Context, v V) (R, error) {
	m.setState(MutationState[R]{Status: MutationLoading})

	var provisional []cache.Optimistic
	if m.opts.Mode == Optimistic && m.optimistic != nil {
		provisional = m.optimistic(v)
	}

	res, err := m.call(ctx, v)
	if err != nil {
		for _, o := range provisional {
			m.c.coordinator.Restore(o)
		}
		m.setState(MutationState[R]{Status: MutationError, Err: err})
		m.notifyError(err)
		return res, err
	}

	d := m.descriptor(m.affected(v, res))
	if !m.opts.SkipInvalidation {
		if err := m.c.coordinator.ApplyMutation(ctx, d); err != nil {
			m.c.logger.Error("hooks: invalidation after mutation failed", "resource", m.t.resource.Name, "operation", m.op, "error", err)
		}
	}

	m.setState(MutationState[R]{Status: MutationSuccess, Data: res, Descriptor: &d})
	if !m.opts.Silent {
		m.notifySuccess()
	}
	return res, nil
}

// descriptor lists what a successful write makes stale.
func (m *Mutation[V, R]) descriptor(ids []types.ID) types.MutationDescriptor {
	invalidates := []string{m.t.listPrefix().String(), m.t.manyPrefix().String()}
	if m.op != types.OperationCreate {
		for _, id := range ids {
			invalidates = append(invalidates, m.t.onePrefix(id).String())
		}
	}
	return types.MutationDescriptor{
		Resource:         m.t.resource.Name,
		DataProviderName: m.t.providerName,
		Operation:        m.op,
		AffectedIDs:      ids,
		Invalidates:      invalidates,
	}
}

var verbs = map[types.Operation][2]string{
	types.OperationCreate:     {"created", "creating"},
	types.OperationUpdate:     {"edited", "editing"},
	types.OperationDeleteOne:  {"deleted", "deleting"},
	types.OperationDeleteMany: {"deleted", "deleting"},
}

func (m *Mutation[V, R]) notificationKey() string {
	return fmt.Sprintf("%s-%s-notification", m.op, m.t.resource.Name)
}

func (m *Mutation[V, R]) notifySuccess() {
	m.sink.Open(notify.Notification{
		Key:         m.notificationKey(),
		Type:        notify.TypeSuccess,
		Message:     fmt.Sprintf("Successfully %s %s", verbs[m.op][0], m.t.resource.Label),
		Description: "Success",
	})
}

func (m *Mutation[V, R]) notifyError(err error) {
	e := types.AsError(err)
	msg := fmt.Sprintf("Error when %s %s", verbs[m.op][1], m.t.resource.Label)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status code: %d)", msg, e.StatusCode)
	}
	m.sink.Open(notify.Notification{
		Key:         m.notificationKey(),
		Type:        notify.TypeError,
		Message:     msg,
		Description: err.Error(),
		Kind:        e.Kind,
	})
}

func newMutation[V, R any](c *Client, resource string, op types.Operation, opts MutationOptions) (*Mutation[V, R], error) {
	t, err := c.resolve(resource, opts.DataProviderName)
	if err != nil {
		return nil, err
	}
	sink := opts.Sink
	if sink == nil {
		sink = c.sink
	}
	return &Mutation[V, R]{
		c:     c,
		t:     t,
		op:    op,
		opts:  opts,
		sink:  sink,
		state: MutationState[R]{Status: MutationIdle},
	}, nil
}

// UseCreate returns a mutation creating records of resource.
func (c *Client) UseCreate(resource string, opts MutationOptions) (*Mutation[types.Record, types.Record], error) {
	m, err := newMutation[types.Record, types.Record](c, resource, types.OperationCreate, opts)
	if err != nil {
		return nil, err
	}
	m.call = func(ctx context.Context, values types.Record) (types.Record, error) {
		return m.t.provider.Create(ctx, m.t.resource.Name, values, opts.Meta)
	}
	m.affected = func(_ types.Record, created types.Record) []types.ID {
		if id := types.IDOf(created[m.t.resource.IdentifierField]); id != "" {
			return []types.ID{id}
		}
		return nil
	}
	return m, nil
}

// UseUpdate returns a mutation updating records of resource.
func (c *Client) UseUpdate(resource string, opts MutationOptions) (*Mutation[UpdateVariables, types.Record], error) {
	m, err := newMutation[UpdateVariables, types.Record](c, resource, types.OperationUpdate, opts)
	if err != nil {
		return nil, err
	}
	m.call = func(ctx context.Context, v UpdateVariables) (types.Record, error) {
		if v.ID == "" {
			return nil, types.NewValidationError("id is required to update %s", m.t.resource.Name)
		}
		return m.t.provider.Update(ctx, m.t.resource.Name, v.ID, v.Values, opts.Meta)
	}
	m.affected = func(v UpdateVariables, _ types.Record) []types.ID {
		return []types.ID{v.ID}
	}
	m.optimistic = func(v UpdateVariables) []cache.Optimistic {
		if v.ID == "" {
			return nil
		}
		return rewrite(c.coordinator, m.t, v.ID, func(rec types.Record) types.Record {
			return merge(rec, v.Values)
		})
	}
	return m, nil
}

// UseDeleteOne returns a mutation deleting single records of resource.
func (c *Client) UseDeleteOne(resource string, opts MutationOptions) (*Mutation[types.ID, types.ID], error) {
	m, err := newMutation[types.ID, types.ID](c, resource, types.OperationDeleteOne, opts)
	if err != nil {
		return nil, err
	}
	m.call = func(ctx context.Context, id types.ID) (types.ID, error) {
		if id == "" {
			return "", types.NewValidationError("id is required to delete %s", m.t.resource.Name)
		}
		return id, m.t.provider.DeleteOne(ctx, m.t.resource.Name, id, opts.Meta)
	}
	m.affected = func(id types.ID, _ types.ID) []types.ID {
		return []types.ID{id}
	}
	m.optimistic = func(id types.ID) []cache.Optimistic {
		return drop(c.coordinator, m.t, []types.ID{id})
	}
	return m, nil
}

// UseDeleteMany returns a mutation deleting several records of resource.
func (c *Client) UseDeleteMany(resource string, opts MutationOptions) (*Mutation[[]types.ID, []types.ID], error) {
	m, err := newMutation[[]types.ID, []types.ID](c, resource, types.OperationDeleteMany, opts)
	if err != nil {
		return nil, err
	}
	m.call = func(ctx context.Context, ids []types.ID) ([]types.ID, error) {
		if len(ids) == 0 {
			return nil, types.NewValidationError("ids are required to delete %s", m.t.resource.Name)
		}
		return ids, m.t.provider.DeleteMany(ctx, m.t.resource.Name, ids, opts.Meta)
	}
	m.affected = func(ids []types.ID, _ []types.ID) []types.ID {
		return ids
	}
	m.optimistic = func(ids []types.ID) []cache.Optimistic {
		return drop(c.coordinator, m.t, ids)
	}
	return m, nil
}

func merge(rec, values types.Record) types.Record {
	out := make(types.Record, len(rec)+len(values))
	for k, v := range rec {
		out[k] = v
	}
	for k, v := range values {
		out[k] = v
	}
	return out
}
