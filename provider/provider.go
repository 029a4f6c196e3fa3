// Package provider defines the contract every backend adapter implements.
package provider

import (
	"context"
	"fmt"

	"github.com/huykn/dataquery/types"
)

// DefaultName is the name of the provider used when none is requested.
const DefaultName = "default"

// DataProvider is the capability set a backend adapter must expose. All
// methods fail with a *types.Error so callers can classify the failure.
type DataProvider interface {
	// GetList returns one page of records and the collection total.
	GetList(ctx context.Context, resource string, params types.ListParams) (*types.ListResult, error)

	// GetOne returns the record with the given id or a NotFoundError.
	GetOne(ctx context.Context, resource string, id types.ID, meta types.Meta) (types.Record, error)

	// GetMany returns the records with the given ids.
	GetMany(ctx context.Context, resource string, ids []types.ID, meta types.Meta) ([]types.Record, error)

	// Create stores a new record and returns it as persisted.
	Create(ctx context.Context, resource string, payload types.Record, meta types.Meta) (types.Record, error)

	// Update changes a record and returns it as persisted.
	Update(ctx context.Context, resource string, id types.ID, payload types.Record, meta types.Meta) (types.Record, error)

	// DeleteOne removes a record.
	DeleteOne(ctx context.Context, resource string, id types.ID, meta types.Meta) error

	// DeleteMany removes several records.
	DeleteMany(ctx context.Context, resource string, ids []types.ID, meta types.Meta) error

	// Custom calls a non-CRUD endpoint.
	Custom(ctx context.Context, req types.CustomRequest) (*types.CustomResponse, error)
}

// Set holds the data providers available to an application, by name.
type Set map[string]DataProvider

// Single returns a Set whose default provider is p.
func Single(p DataProvider) Set {
	return Set{DefaultName: p}
}

// Get returns the provider registered under name, or the default provider
// when name is empty.
func (s Set) Get(name string) (DataProvider, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := s[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("data provider %q is not configured", name)
	}
	return p, nil
}
