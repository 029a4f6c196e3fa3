package hooks

import (
	"context"
	"strings"
	"time"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/types"
)

// QueryOptions are shared by every read hook.
type QueryOptions struct {
	// DataProviderName overrides the resource's provider.
	DataProviderName string

	// StaleTime overrides the coordinator's StaleTime when positive.
	StaleTime time.Duration

	// RetryCount overrides the coordinator's RetryCount when non-nil.
	RetryCount *int
}

func (o QueryOptions) cacheOptions(fetch cache.FetchFunc, decode cache.DecodeFunc) cache.QueryOptions {
	return cache.QueryOptions{
		Fetch:      fetch,
		Decode:     decode,
		StaleTime:  o.StaleTime,
		RetryCount: o.RetryCount,
	}
}

// ListOptions configure UseList and FetchList.
type ListOptions struct {
	QueryOptions

	Filters []types.Filter
	// Sorters default to the resource's DefaultSort.
	Sorters []types.Sort
	// Pagination defaults to page 1 of 10 in server mode.
	Pagination *types.Pagination
	Meta       types.Meta
}

// OneOptions configure UseOne.
type OneOptions struct {
	QueryOptions
	Meta types.Meta
}

// ManyOptions configure UseMany.
type ManyOptions struct {
	QueryOptions
	Meta types.Meta
}

// CustomConfig describes a custom request.
type CustomConfig struct {
	QueryOptions `json:"-"`

	Sorters []types.Sort      `json:"sorters,omitempty"`
	Filters []types.Filter    `json:"filters,omitempty"`
	Query   map[string]any    `json:"query,omitempty"`
	Payload any               `json:"payload,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Meta    types.Meta        `json:"meta,omitempty"`
}

// listParams builds the provider params for a list request.
func listParams(t target, opts ListOptions) types.ListParams {
	sorters := opts.Sorters
	if len(sorters) == 0 {
		sorters = t.resource.DefaultSort
	}

	var pagination types.Pagination
	if opts.Pagination != nil {
		pagination = *opts.Pagination
	}
	pagination = pagination.Normalize()

	return types.ListParams{
		Filters:    opts.Filters,
		Sort:       sorters,
		Pagination: &pagination,
		Meta:       opts.Meta,
	}
}

func validateFilters(t target, filters []types.Filter) error {
	for _, f := range filters {
		if !t.resource.SupportsOperator(f.Operator) {
			return types.NewValidationError("filter operator %q is not supported on %s.%s", f.Operator, t.resource.Name, f.Field)
		}
	}
	return nil
}

// UseList observes a page of resource records.
func (c *Client) UseList(resource string, opts ListOptions) (*Query[types.ListResult], error) {
	t, err := c.resolve(resource, opts.DataProviderName)
	if err != nil {
		return nil, err
	}

	params := listParams(t, opts)
	key := cache.DataKey(t.providerName, t.resource.Name, types.OperationList, params)

	fetch := func(ctx context.Context) (any, error) {
		if err := validateFilters(t, params.Filters); err != nil {
			return nil, err
		}
		res, err := t.provider.GetList(ctx, t.resource.Name, params)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return types.ListResult{}, nil
		}
		return *res, nil
	}

	return observe[types.ListResult](c, key, opts.cacheOptions(fetch, decodeJSON[types.ListResult]))
}

// FetchList reads a page of resource records once, through the cache. Data
// known to be stale is revalidated before it is returned.
func (c *Client) FetchList(ctx context.Context, resource string, opts ListOptions) (types.ListResult, error) {
	q, err := c.UseList(resource, opts)
	if err != nil {
		return types.ListResult{}, err
	}
	defer q.Close()

	res, err := q.WaitFresh(ctx)
	return res.Data, err
}

// UseOne observes a single record.
func (c *Client) UseOne(resource string, id types.ID, opts OneOptions) (*Query[types.Record], error) {
	if id == "" {
		return nil, types.NewValidationError("id is required to read one %s", resource)
	}
	t, err := c.resolve(resource, opts.DataProviderName)
	if err != nil {
		return nil, err
	}

	key := cache.DataKey(t.providerName, t.resource.Name, types.OperationOne, id, opts.Meta)
	fetch := func(ctx context.Context) (any, error) {
		return t.provider.GetOne(ctx, t.resource.Name, id, opts.Meta)
	}

	return observe[types.Record](c, key, opts.cacheOptions(fetch, decodeJSON[types.Record]))
}

// UseMany observes several records by id. A provider answer missing any of
// the requested ids fails with a NotFoundError.
func (c *Client) UseMany(resource string, ids []types.ID, opts ManyOptions) (*Query[[]types.Record], error) {
	if len(ids) == 0 {
		return nil, types.NewValidationError("ids are required to read many %s", resource)
	}
	t, err := c.resolve(resource, opts.DataProviderName)
	if err != nil {
		return nil, err
	}

	ids = append([]types.ID(nil), ids...)
	key := cache.DataKey(t.providerName, t.resource.Name, types.OperationMany, ids, opts.Meta)
	fetch := func(ctx context.Context) (any, error) {
		records, err := t.provider.GetMany(ctx, t.resource.Name, ids, opts.Meta)
		if err != nil {
			return nil, err
		}
		if err := checkComplete(t, ids, records); err != nil {
			return nil, err
		}
		return records, nil
	}

	return observe[[]types.Record](c, key, opts.cacheOptions(fetch, decodeJSON[[]types.Record]))
}

func checkComplete(t target, ids []types.ID, records []types.Record) error {
	found := make(map[types.ID]struct{}, len(records))
	for _, rec := range records {
		found[types.IDOf(rec[t.resource.IdentifierField])] = struct{}{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return types.NewNotFoundError("%s not found: %s", t.resource.Name, strings.Join(missing, ", "))
	}
	return nil
}

// UseCustom observes a custom endpoint. It is cached only under its own
// method, url and config.
func (c *Client) UseCustom(url, method string, cfg CustomConfig) (*Query[types.CustomResponse], error) {
	if url == "" {
		return nil, types.NewValidationError("url is required for a custom request")
	}
	if method == "" {
		method = "get"
	}
	method = strings.ToLower(method)

	p, err := c.providers.Get(cfg.DataProviderName)
	if err != nil {
		return nil, err
	}

	key := cache.CustomKey(method, url, cfg)
	req := types.CustomRequest{
		URL:     url,
		Method:  method,
		Sort:    cfg.Sorters,
		Filters: cfg.Filters,
		Query:   cfg.Query,
		Payload: cfg.Payload,
		Headers: cfg.Headers,
		Meta:    cfg.Meta,
	}
	fetch := func(ctx context.Context) (any, error) {
		res, err := p.Custom(ctx, req)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return types.CustomResponse{}, nil
		}
		return *res, nil
	}

	return observe[types.CustomResponse](c, key, cfg.cacheOptions(fetch, decodeJSON[types.CustomResponse]))
}

func observe[T any](c *Client, key cache.Key, opts cache.QueryOptions) (*Query[T], error) {
	sub, err := c.coordinator.Observe(key, opts)
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Debug("hooks: observing", "key", key.String())
	}
	return newQuery[T](sub), nil
}
