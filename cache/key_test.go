package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huykn/dataquery/types"
)

func draftFilter() types.Filter {
	return types.Filter{Field: "status", Operator: types.OpEq, Value: "draft"}
}

func TestKeyIdenticalParams(t *testing.T) {
	p1 := types.ListParams{
		Filters:    []types.Filter{draftFilter()},
		Sort:       []types.Sort{{Field: "id", Order: types.SortDesc}},
		Pagination: &types.Pagination{Current: 1, PageSize: 10},
		Meta:       types.Meta{"b": 1, "a": 2},
	}
	p2 := types.ListParams{
		Filters:    []types.Filter{draftFilter()},
		Sort:       []types.Sort{{Field: "id", Order: types.SortDesc}},
		Pagination: &types.Pagination{Current: 1, PageSize: 10},
		Meta:       types.Meta{"a": 2, "b": 1},
	}

	k1 := DataKey("default", "posts", types.OperationList, p1)
	k2 := DataKey("default", "posts", types.OperationList, p2)
	assert.Equal(t, k1.String(), k2.String())
	assert.Equal(t, k1.Hash(), k2.Hash())
}

func TestKeySensitivity(t *testing.T) {
	base := types.ListParams{
		Filters:    []types.Filter{draftFilter(), {Field: "title", Operator: types.OpContains, Value: "go"}},
		Sort:       []types.Sort{{Field: "id", Order: types.SortAsc}, {Field: "title", Order: types.SortAsc}},
		Pagination: &types.Pagination{Current: 1, PageSize: 10},
	}
	baseKey := DataKey("default", "posts", types.OperationList, base).String()

	variants := map[string]func(p *types.ListParams){
		"filter value": func(p *types.ListParams) {
			p.Filters = []types.Filter{{Field: "status", Operator: types.OpEq, Value: "published"}, p.Filters[1]}
		},
		"filter operator": func(p *types.ListParams) {
			p.Filters = []types.Filter{{Field: "status", Operator: types.OpNe, Value: "draft"}, p.Filters[1]}
		},
		"filter order": func(p *types.ListParams) {
			p.Filters = []types.Filter{p.Filters[1], p.Filters[0]}
		},
		"sort direction": func(p *types.ListParams) {
			p.Sort = []types.Sort{{Field: "id", Order: types.SortDesc}, p.Sort[1]}
		},
		"sort order": func(p *types.ListParams) {
			p.Sort = []types.Sort{p.Sort[1], p.Sort[0]}
		},
		"page": func(p *types.ListParams) {
			p.Pagination = &types.Pagination{Current: 2, PageSize: 10}
		},
		"page size": func(p *types.ListParams) {
			p.Pagination = &types.Pagination{Current: 1, PageSize: 20}
		},
	}

	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			p := base
			p.Filters = append([]types.Filter(nil), base.Filters...)
			p.Sort = append([]types.Sort(nil), base.Sort...)
			mutate(&p)
			assert.NotEqual(t, baseKey, DataKey("default", "posts", types.OperationList, p).String())
		})
	}
}

func TestKeyNamespacesDoNotCollide(t *testing.T) {
	custom := CustomKey("GET", "/posts", nil)
	resource := DataKey("default", "custom", types.OperationList, types.ListParams{})
	assert.False(t, resource.HasPrefix(custom[:2]))
	assert.False(t, custom.HasPrefix(ResourcePrefix("default", "custom")))
}

func TestKeyStringRoundTrip(t *testing.T) {
	k := DataKey("rest api", "blog/posts", types.OperationOne, types.ID("a/b"), types.Meta{"x": "y"})
	s := k.String()
	assert.Equal(t, `v1/data/rest%20api/blog%2Fposts/one/a%2Fb/%7B%22x%22:%22y%22%7D`, s)

	parsed, err := ParseKey(s)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseKey("")
	assert.Error(t, err)
	_, err = ParseKey("v1/%zz")
	assert.Error(t, err)
}

func TestKeyHasPrefix(t *testing.T) {
	one := DataKey("default", "posts", types.OperationOne, types.ID("5"), types.Meta(nil))
	list := DataKey("default", "posts", types.OperationList, types.ListParams{})

	assert.True(t, one.HasPrefix(ResourcePrefix("default", "posts")))
	assert.True(t, one.HasPrefix(DataKey("default", "posts", types.OperationOne, types.ID("5"))))
	assert.False(t, one.HasPrefix(DataKey("default", "posts", types.OperationOne, types.ID("50"))))
	assert.False(t, list.HasPrefix(ResourcePrefix("default", "posts_archive")))
	assert.False(t, list.HasPrefix(ResourcePrefix("graphql", "posts")))
	assert.True(t, matchesAny(list, []Key{ResourcePrefix("default", "users"), DataKey("default", "posts", types.OperationList)}))
}

func TestKeyAccessors(t *testing.T) {
	k := DataKey("default", "posts", types.OperationMany, []types.ID{"1", "2"})
	assert.Equal(t, "posts", k.Resource())
	assert.Equal(t, types.OperationMany, k.Operation())

	c := CustomKey("post", "/reports", map[string]any{"q": 1})
	assert.Equal(t, "", c.Resource())
	assert.Equal(t, types.OperationCustom, c.Operation())
	assert.Equal(t, "post", c[2])
}
