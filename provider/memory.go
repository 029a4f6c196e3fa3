package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/huykn/dataquery/types"
)

var _ DataProvider = (*Memory)(nil)

// CustomHandler serves a custom request on the in-memory provider.
type CustomHandler func(ctx context.Context, req types.CustomRequest) (*types.CustomResponse, error)

// MemoryOption configures a Memory provider.
type MemoryOption func(*Memory)

// WithIdentifierField sets the identifier field of a resource (default "id").
func WithIdentifierField(resource, field string) MemoryOption {
	return func(m *Memory) {
		m.idFields[resource] = field
	}
}

// WithLatency delays every call, honoring context cancellation.
func WithLatency(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.latency = d
	}
}

// WithRecords seeds a resource with records.
func WithRecords(resource string, records ...types.Record) MemoryOption {
	return func(m *Memory) {
		for _, rec := range records {
			m.insert(resource, rec)
		}
	}
}

// Memory is an in-process data provider backed by maps. It is the mock store
// used by tests and by the command line tool.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]types.Record
	idFields map[string]string
	handlers map[string]CustomHandler
	latency  time.Duration
}

// NewMemory creates an empty in-memory provider.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		data:     make(map[string][]types.Record),
		idFields: make(map[string]string),
		handlers: make(map[string]CustomHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleCustom registers a handler for custom requests to method + url.
func (m *Memory) HandleCustom(method, url string, h CustomHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[customRoute(method, url)] = h
}

func customRoute(method, url string) string {
	return strings.ToUpper(method) + " " + url
}

func (m *Memory) idField(resource string) string {
	if f, ok := m.idFields[resource]; ok && f != "" {
		return f
	}
	return "id"
}

func (m *Memory) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return ctxErr(ctx)
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctxErr(ctx)
	}
}

func ctxErr(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewTimeoutError(err, "request timed out")
	default:
		return err
	}
}

// insert stores rec without locking; callers hold the write lock or own m.
func (m *Memory) insert(resource string, rec types.Record) types.Record {
	field := m.idField(resource)
	cp := copyRecord(rec)
	if types.IDOf(cp[field]) == "" {
		cp[field] = uuid.NewString()
	}
	m.data[resource] = append(m.data[resource], cp)
	return cp
}

func (m *Memory) indexOf(resource string, id types.ID) int {
	field := m.idField(resource)
	for i, rec := range m.data[resource] {
		if types.IDOf(rec[field]) == id {
			return i
		}
	}
	return -1
}

// GetList filters, sorts and paginates a resource.
func (m *Memory) GetList(ctx context.Context, resource string, params types.ListParams) (*types.ListResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]types.Record, 0, len(m.data[resource]))
	for _, rec := range m.data[resource] {
		ok, err := matchAll(rec, params.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	sortRecords(matched, params.Sort)

	total := len(matched)
	if params.Pagination != nil {
		p := params.Pagination.Normalize()
		if p.Mode != types.PaginationOff {
			start := (p.Current - 1) * p.PageSize
			if start > total {
				start = total
			}
			end := start + p.PageSize
			if end > total {
				end = total
			}
			matched = matched[start:end]
		}
	}

	out := make([]types.Record, len(matched))
	for i, rec := range matched {
		out[i] = copyRecord(rec)
	}
	return &types.ListResult{Data: out, Total: total}, nil
}

// GetOne returns a single record.
func (m *Memory) GetOne(ctx context.Context, resource string, id types.ID, _ types.Meta) (types.Record, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexOf(resource, id)
	if i < 0 {
		return nil, types.NewNotFoundError("%s %s not found", resource, id)
	}
	return copyRecord(m.data[resource][i]), nil
}

// GetMany returns records in the requested order. Any missing id fails the
// whole call.
func (m *Memory) GetMany(ctx context.Context, resource string, ids []types.ID, _ types.Meta) ([]types.Record, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		i := m.indexOf(resource, id)
		if i < 0 {
			return nil, types.NewNotFoundError("%s %s not found", resource, id)
		}
		out = append(out, copyRecord(m.data[resource][i]))
	}
	return out, nil
}

// Create stores a record, generating an id when the payload has none.
func (m *Memory) Create(ctx context.Context, resource string, payload types.Record, _ types.Meta) (types.Record, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, types.NewValidationError("empty %s payload", resource)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id := types.IDOf(payload[m.idField(resource)]); id != "" && m.indexOf(resource, id) >= 0 {
		return nil, types.NewConflictError("%s %s already exists", resource, id)
	}
	return copyRecord(m.insert(resource, payload)), nil
}

// Update merges payload into an existing record.
func (m *Memory) Update(ctx context.Context, resource string, id types.ID, payload types.Record, _ types.Meta) (types.Record, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(resource, id)
	if i < 0 {
		return nil, types.NewNotFoundError("%s %s not found", resource, id)
	}
	field := m.idField(resource)
	rec := copyRecord(m.data[resource][i])
	for k, v := range payload {
		if k == field {
			continue
		}
		rec[k] = v
	}
	m.data[resource][i] = rec
	return copyRecord(rec), nil
}

// DeleteOne removes a record.
func (m *Memory) DeleteOne(ctx context.Context, resource string, id types.ID, meta types.Meta) error {
	return m.DeleteMany(ctx, resource, []types.ID{id}, meta)
}

// DeleteMany removes records. Nothing is removed when any id is missing.
func (m *Memory) DeleteMany(ctx context.Context, resource string, ids []types.ID, _ types.Meta) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[types.ID]struct{}, len(ids))
	for _, id := range ids {
		if m.indexOf(resource, id) < 0 {
			return types.NewNotFoundError("%s %s not found", resource, id)
		}
		drop[id] = struct{}{}
	}

	field := m.idField(resource)
	kept := m.data[resource][:0]
	for _, rec := range m.data[resource] {
		if _, ok := drop[types.IDOf(rec[field])]; !ok {
			kept = append(kept, rec)
		}
	}
	m.data[resource] = kept
	return nil
}

// Custom dispatches to a handler registered with HandleCustom.
func (m *Memory) Custom(ctx context.Context, req types.CustomRequest) (*types.CustomResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	h, ok := m.handlers[customRoute(req.Method, req.URL)]
	m.mu.RUnlock()

	if !ok {
		return nil, types.NewNotFoundError("no handler for %s %s", strings.ToUpper(req.Method), req.URL)
	}
	return h(ctx, req)
}

// Load replaces the store content with a JSON object of resource -> records.
func (m *Memory) Load(r io.Reader) error {
	var data map[string][]types.Record
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return errors.Wrap(err, "failed to decode memory store")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]types.Record, len(data))
	for resource, records := range data {
		for _, rec := range records {
			m.insert(resource, rec)
		}
	}
	return nil
}

// Save writes the store content as JSON.
func (m *Memory) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(m.data), "failed to encode memory store")
}

// Len returns the number of records stored for resource.
func (m *Memory) Len(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[resource])
}

func copyRecord(rec types.Record) types.Record {
	cp := make(types.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}

func matchAll(rec types.Record, filters []types.Filter) (bool, error) {
	for _, f := range filters {
		ok, err := match(rec[f.Field], f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func match(v any, f types.Filter) (bool, error) {
	switch f.Operator {
	case types.OpEq:
		return compare(v, f.Value) == 0, nil
	case types.OpNe:
		return compare(v, f.Value) != 0, nil
	case types.OpLt:
		return v != nil && compare(v, f.Value) < 0, nil
	case types.OpLte:
		return v != nil && compare(v, f.Value) <= 0, nil
	case types.OpGt:
		return v != nil && compare(v, f.Value) > 0, nil
	case types.OpGte:
		return v != nil && compare(v, f.Value) >= 0, nil
	case types.OpIn, types.OpNin:
		found := false
		for _, candidate := range toSlice(f.Value) {
			if compare(v, candidate) == 0 {
				found = true
				break
			}
		}
		return found == (f.Operator == types.OpIn), nil
	case types.OpContains:
		return strings.Contains(strings.ToLower(toString(v)), strings.ToLower(toString(f.Value))), nil
	case types.OpNContains:
		return !strings.Contains(strings.ToLower(toString(v)), strings.ToLower(toString(f.Value))), nil
	case types.OpContainss:
		return strings.Contains(toString(v), toString(f.Value)), nil
	case types.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(toString(v)), strings.ToLower(toString(f.Value))), nil
	case types.OpEndsWith:
		return strings.HasSuffix(strings.ToLower(toString(v)), strings.ToLower(toString(f.Value))), nil
	case types.OpNull:
		return v == nil, nil
	case types.OpNNull:
		return v != nil, nil
	default:
		return false, types.NewValidationError("unsupported filter operator %q on field %q", f.Operator, f.Field)
	}
}

func sortRecords(records []types.Record, sorters []types.Sort) {
	if len(sorters) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, s := range sorters {
			c := compare(records[i][s.Field], records[j][s.Field])
			if c == 0 {
				continue
			}
			if s.Order == types.SortDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compare orders numbers numerically and everything else by string form.
// nil sorts first.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []types.ID:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = string(x)
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		return []any{v}
	}
}
