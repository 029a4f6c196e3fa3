// Package hooks is the typed entry point application code uses to read and
// write records. Reads go through the cache coordinator; writes call the data
// provider once and invalidate the affected cache entries on success.
package hooks

import (
	"errors"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/provider"
	"github.com/huykn/dataquery/registry"
	"github.com/huykn/dataquery/types"
)

// ErrNoCoordinator is returned by NewClient without a coordinator.
var ErrNoCoordinator = errors.New("hooks: coordinator is required")

// ErrNoProviders is returned by NewClient without data providers.
var ErrNoProviders = errors.New("hooks: at least one data provider is required")

// Config holds the dependencies of a Client.
type Config struct {
	Coordinator *cache.Coordinator
	Providers   provider.Set

	// Registry is optional; unknown resources get default metadata.
	Registry *registry.Registry

	// Sink receives mutation notifications. Defaults to notify.NoOp.
	Sink notify.Sink

	// Logger defaults to a no-op logger.
	Logger cache.Logger
}

// Client binds hooks to one coordinator and provider set.
type Client struct {
	coordinator *cache.Coordinator
	providers   provider.Set
	registry    *registry.Registry
	sink        notify.Sink
	logger      cache.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Coordinator == nil {
		return nil, ErrNoCoordinator
	}
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.NoOp{}
	}
	if cfg.Logger == nil {
		cfg.Logger = cache.NewNoOpLogger()
	}

	return &Client{
		coordinator: cfg.Coordinator,
		providers:   cfg.Providers,
		registry:    cfg.Registry,
		sink:        cfg.Sink,
		logger:      cfg.Logger,
	}, nil
}

// Coordinator returns the coordinator the client reads through.
func (c *Client) Coordinator() *cache.Coordinator {
	return c.coordinator
}

// Registry returns the resource registry, which may be nil.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Logger returns the client's logger.
func (c *Client) Logger() cache.Logger {
	return c.logger
}

// Sink returns the notification sink.
func (c *Client) Sink() notify.Sink {
	return c.sink
}

// target is a resolved resource together with the provider serving it.
type target struct {
	resource     registry.Resource
	providerName string
	provider     provider.DataProvider
}

// resolve picks the provider for resource. An explicit override wins over
// the resource's own provider name.
func (c *Client) resolve(resource, override string) (target, error) {
	if resource == "" {
		return target{}, types.NewValidationError("resource name is required")
	}

	res := c.registry.Resolve(resource)
	name := override
	if name == "" {
		name = res.DataProviderName
	}
	if name == "" {
		name = provider.DefaultName
	}

	p, err := c.providers.Get(name)
	if err != nil {
		return target{}, err
	}
	return target{resource: res, providerName: name, provider: p}, nil
}

// Invalidation prefixes of a resource.

func (t target) allPrefix() cache.Key {
	return cache.ResourcePrefix(t.providerName, t.resource.Name)
}

func (t target) listPrefix() cache.Key {
	return cache.DataKey(t.providerName, t.resource.Name, types.OperationList)
}

func (t target) manyPrefix() cache.Key {
	return cache.DataKey(t.providerName, t.resource.Name, types.OperationMany)
}

func (t target) onePrefix(id types.ID) cache.Key {
	return cache.DataKey(t.providerName, t.resource.Name, types.OperationOne, id)
}
