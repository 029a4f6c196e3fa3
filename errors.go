package dataquery

import (
	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/hooks"
	"github.com/huykn/dataquery/types"
)

// ErrNoProviders is returned by New without data providers.
var ErrNoProviders = hooks.ErrNoProviders

// ErrCacheClosed is returned when operations are performed on a closed client.
var ErrCacheClosed = cache.ErrCacheClosed

// ErrInvalidConfig is returned when the cache configuration is invalid.
var ErrInvalidConfig = cache.ErrInvalidConfig

// Error kinds matched with errors.Is.
var (
	ErrValidation = types.ErrValidation
	ErrNotFound   = types.ErrNotFound
	ErrTransport  = types.ErrTransport
	ErrTimeout    = types.ErrTimeout
	ErrConflict   = types.ErrConflict
)
