package hooks

import (
	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/types"
)

// rewrite replaces the cached copies of record id with fn(record) in list,
// many and one queries of t.
func rewrite(co *cache.Coordinator, t target, id types.ID, fn func(types.Record) types.Record) []cache.Optimistic {
	field := t.resource.IdentifierField
	matches := func(rec types.Record) bool {
		return types.IDOf(rec[field]) == id
	}

	list := co.SetQueriesData(t.listPrefix(), func(_ cache.Key, current any) (any, bool) {
		res, ok := current.(types.ListResult)
		if !ok {
			return nil, false
		}
		data, changed := mapRecords(res.Data, matches, fn)
		if !changed {
			return nil, false
		}
		return types.ListResult{Data: data, Total: res.Total}, true
	})

	many := co.SetQueriesData(t.manyPrefix(), func(_ cache.Key, current any) (any, bool) {
		records, ok := current.([]types.Record)
		if !ok {
			return nil, false
		}
		data, changed := mapRecords(records, matches, fn)
		return data, changed
	})

	one := co.SetQueriesData(t.onePrefix(id), func(_ cache.Key, current any) (any, bool) {
		rec, ok := current.(types.Record)
		if !ok {
			return nil, false
		}
		return fn(rec), true
	})

	return []cache.Optimistic{list, many, one}
}

// drop removes records ids from cached list and many queries of t.
func drop(co *cache.Coordinator, t target, ids []types.ID) []cache.Optimistic {
	field := t.resource.IdentifierField
	gone := make(map[types.ID]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	keep := func(rec types.Record) bool {
		_, ok := gone[types.IDOf(rec[field])]
		return !ok
	}

	list := co.SetQueriesData(t.listPrefix(), func(_ cache.Key, current any) (any, bool) {
		res, ok := current.(types.ListResult)
		if !ok {
			return nil, false
		}
		data := filterRecords(res.Data, keep)
		removed := len(res.Data) - len(data)
		if removed == 0 {
			return nil, false
		}
		total := res.Total - removed
		if total < 0 {
			total = 0
		}
		return types.ListResult{Data: data, Total: total}, true
	})

	many := co.SetQueriesData(t.manyPrefix(), func(_ cache.Key, current any) (any, bool) {
		records, ok := current.([]types.Record)
		if !ok {
			return nil, false
		}
		data := filterRecords(records, keep)
		return data, len(data) != len(records)
	})

	return []cache.Optimistic{list, many}
}

func mapRecords(records []types.Record, match func(types.Record) bool, fn func(types.Record) types.Record) ([]types.Record, bool) {
	out := make([]types.Record, len(records))
	changed := false
	for i, rec := range records {
		if match(rec) {
			out[i] = fn(rec)
			changed = true
			continue
		}
		out[i] = rec
	}
	return out, changed
}

func filterRecords(records []types.Record, keep func(types.Record) bool) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, rec := range records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
