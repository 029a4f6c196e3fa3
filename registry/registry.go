// Package registry holds the static mapping from resource names to their
// metadata.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"

	"github.com/huykn/dataquery/types"
)

// DefaultIdentifierField is used when a resource does not declare one.
const DefaultIdentifierField = "id"

var (
	// ErrResourceExists is returned when a resource name is registered twice.
	ErrResourceExists = errors.New("resource already registered")

	// ErrInvalidResource is returned for a resource without a name.
	ErrInvalidResource = errors.New("invalid resource")
)

// Resource describes a named collection of records.
type Resource struct {
	Name            string
	IdentifierField string
	// Label is the human readable name used in notifications.
	Label string
	// DefaultSort applies when a list request carries no sort.
	DefaultSort []types.Sort
	// FilterOperators restricts the operators accepted for this resource.
	// Empty means any operator.
	FilterOperators []types.FilterOperator
	// DataProviderName selects a named data provider. Empty means default.
	DataProviderName string
	Meta             types.Meta
}

// SupportsOperator reports whether op may be used to filter this resource.
func (r Resource) SupportsOperator(op types.FilterOperator) bool {
	if len(r.FilterOperators) == 0 {
		return true
	}
	for _, allowed := range r.FilterOperators {
		if allowed == op {
			return true
		}
	}
	return false
}

// clone copies the slices and map so the copy shares no storage with r.
func (r Resource) clone() Resource {
	if r.DefaultSort != nil {
		r.DefaultSort = append([]types.Sort(nil), r.DefaultSort...)
	}
	if r.FilterOperators != nil {
		r.FilterOperators = append([]types.FilterOperator(nil), r.FilterOperators...)
	}
	if r.Meta != nil {
		meta := make(types.Meta, len(r.Meta))
		for k, v := range r.Meta {
			meta[k] = v
		}
		r.Meta = meta
	}
	return r
}

// Registry maps resource names to resources. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]Resource
	order     []string
}

// New creates a registry holding the given resources.
func New(resources ...Resource) (*Registry, error) {
	r := &Registry{resources: make(map[string]Resource)}
	for _, res := range resources {
		if err := r.Register(res); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a resource. The stored value is immutable afterwards.
func (r *Registry) Register(res Resource) error {
	res.Name = strings.TrimSpace(res.Name)
	if res.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidResource)
	}
	if res.IdentifierField == "" {
		res.IdentifierField = DefaultIdentifierField
	}
	if res.Label == "" {
		res.Label = strcase.ToDelimited(res.Name, ' ')
	}
	res = res.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[res.Name]; exists {
		return fmt.Errorf("%w: %s", ErrResourceExists, res.Name)
	}
	r.resources[res.Name] = res
	r.order = append(r.order, res.Name)
	return nil
}

// Get returns the resource registered under name.
func (r *Registry) Get(name string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[name]
	return res.clone(), ok
}

// Resolve returns the registered resource, or a default description for an
// unregistered name so that ad-hoc resources keep working.
func (r *Registry) Resolve(name string) Resource {
	if r != nil {
		if res, ok := r.Get(name); ok {
			return res
		}
	}
	return Resource{
		Name:            name,
		IdentifierField: DefaultIdentifierField,
		Label:           strcase.ToDelimited(name, ' '),
	}
}

// List returns resources in registration order.
func (r *Registry) List() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.resources[name].clone())
	}
	return out
}
