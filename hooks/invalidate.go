package hooks

import (
	"context"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/types"
)

// Target selects which cached queries of a resource UseInvalidate marks stale.
type Target string

const (
	// TargetAll matches every cached query, custom ones included.
	TargetAll         Target = "all"
	TargetResourceAll Target = "resourceAll"
	TargetList        Target = "list"
	TargetMany        Target = "many"
	// TargetDetail matches the one query of InvalidateParams.ID.
	TargetDetail Target = "detail"
)

// InvalidateParams configure UseInvalidate.
type InvalidateParams struct {
	Resource         string
	DataProviderName string
	ID               types.ID
	// Invalidates defaults to TargetResourceAll.
	Invalidates []Target
}

// UseInvalidate marks cached queries stale. Observed queries refetch.
func (c *Client) UseInvalidate(ctx context.Context, p InvalidateParams) error {
	targets := p.Invalidates
	if len(targets) == 0 {
		targets = []Target{TargetResourceAll}
	}

	var prefixes []cache.Key
	var t target
	resolved := false
	for _, tg := range targets {
		if tg == TargetAll {
			prefixes = append(prefixes, cache.Key{cache.KeyVersion})
			continue
		}
		if !resolved {
			var err error
			if t, err = c.resolve(p.Resource, p.DataProviderName); err != nil {
				return err
			}
			resolved = true
		}

		switch tg {
		case TargetResourceAll:
			prefixes = append(prefixes, t.allPrefix())
		case TargetList:
			prefixes = append(prefixes, t.listPrefix())
		case TargetMany:
			prefixes = append(prefixes, t.manyPrefix())
		case TargetDetail:
			if p.ID == "" {
				return types.NewValidationError("id is required to invalidate the detail of %s", p.Resource)
			}
			prefixes = append(prefixes, t.onePrefix(p.ID))
		default:
			return types.NewValidationError("unknown invalidation target %q", tg)
		}
	}

	return c.coordinator.Invalidate(ctx, prefixes...)
}
