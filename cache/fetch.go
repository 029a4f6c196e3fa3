package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/huykn/dataquery/types"
)

// persistedEntry is the Store representation of a successful entry.
type persistedEntry struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
	Data      []byte    `json:"data"`
}

// storeKey names an entry in the Store.
func storeKey(k Key) string {
	return fmt.Sprintf("%s:%016x", KeyVersion, k.Hash())
}

// startFetchLocked issues a new request for e. Unless force is set, an
// entry that is already fetching is left alone.
func (c *Coordinator) startFetchLocked(e *entry, force bool) {
	if e.fetching && !force {
		return
	}
	if e.opts.Fetch == nil || c.ctx.Err() != nil {
		return
	}

	e.issued++
	seq := e.issued
	e.fetching = true
	if e.status == StatusIdle {
		e.status = StatusLoading
	}
	atomic.AddInt64(&c.stats.Fetches, 1)
	c.notifyLocked(e)

	if c.options.DebugMode {
		c.logger.Debug("fetch: request issued", "key", e.id, "seq", seq, "forced", force)
	}

	c.wg.Add(1)
	go c.run(e, seq, e.opts)
}

func (c *Coordinator) run(e *entry, seq uint64, opts QueryOptions) {
	defer c.wg.Done()

	if seq == 1 && c.store != nil && opts.Decode != nil {
		c.hydrate(e, opts.Decode)
	}

	value, err := c.fetchWithRetry(e, seq, opts)
	if c.ctx.Err() != nil {
		return
	}

	if c.settle(e, seq, value, err) && err == nil && c.store != nil {
		c.persist(e.key, value)
	}
}

// fetchWithRetry runs opts.Fetch, retrying transport and timeout failures
// with exponential backoff.
func (c *Coordinator) fetchWithRetry(e *entry, seq uint64, opts QueryOptions) (any, error) {
	retries := c.options.RetryCount
	if opts.RetryCount != nil {
		retries = *opts.RetryCount
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.options.RetryDelay
	if c.options.MaxRetryDelay > 0 {
		expBackoff.MaxInterval = c.options.MaxRetryDelay
	}
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(retries)), c.ctx)

	operation := func() (any, error) {
		value, err := c.attempt(opts.Fetch)
		if err != nil {
			if !types.Retryable(err) || c.ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return value, nil
	}

	notify := func(err error, next time.Duration) {
		atomic.AddInt64(&c.stats.Retries, 1)

		c.mu.Lock()
		if seq > e.applied {
			e.failures++
			c.notifyLocked(e)
		}
		c.mu.Unlock()

		if c.options.DebugMode {
			c.logger.Debug("fetch: retrying", "key", e.id, "seq", seq, "error", err, "next", next)
		}
	}

	return backoff.RetryNotifyWithData(operation, policy, notify)
}

type fetchResult struct {
	value any
	err   error
}

// attempt runs a single fetch under the configured timeout. A fetch that
// ignores its context is abandoned when the timeout fires.
func (c *Coordinator) attempt(fetch FetchFunc) (any, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.options.Timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		value, err := fetch(ctx)
		done <- fetchResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		if c.ctx.Err() != nil {
			return nil, c.ctx.Err()
		}
		return nil, types.NewTimeoutError(ctx.Err(), "request timed out after %s", c.options.Timeout)
	}
}

// settle applies the outcome of request seq. It reports whether the outcome
// was applied; out-of-order and unobserved responses are discarded.
func (c *Coordinator) settle(e *entry, seq uint64, value any, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq == e.issued {
		e.fetching = false
	}

	if seq <= e.applied || len(e.subs) == 0 {
		atomic.AddInt64(&c.stats.Discarded, 1)
		if c.options.DebugMode {
			c.logger.Debug("fetch: response discarded", "key", e.id, "seq", seq, "applied", e.applied)
		}
		if !e.fetching {
			if e.status == StatusLoading {
				e.status = StatusIdle
			}
			if len(e.subs) == 0 {
				c.retireLocked(e)
			}
		}
		c.notifyLocked(e)
		return false
	}

	now := c.options.Now()
	e.applied = seq
	if err != nil {
		e.status = StatusError
		e.err = err
		e.errorUpdatedAt = now
		e.failures++
		c.reportError(err)
		if c.options.DebugMode {
			c.logger.Warn("fetch: request failed", "key", e.id, "seq", seq, "error", err)
		}
	} else {
		e.status = StatusSuccess
		e.data = value
		e.hasData = true
		e.err = nil
		e.updatedAt = now
		e.failures = 0
		e.version++
		if seq == e.issued {
			e.invalidated = false
		}
	}

	c.notifyLocked(e)
	return true
}

// hydrate serves a persisted copy of e as stale data while the first
// request is in flight.
func (c *Coordinator) hydrate(e *entry, decode DecodeFunc) {
	ctx, cancel := context.WithTimeout(c.ctx, c.options.Timeout)
	defer cancel()

	raw, err := c.store.Get(ctx, storeKey(e.key))
	if err != nil || raw == nil {
		return
	}

	var stored persistedEntry
	if err := c.serializer.Unmarshal(raw, &stored); err != nil || stored.Key != e.id {
		return
	}
	value, err := decode(stored.Data)
	if err != nil {
		if c.options.DebugMode {
			c.logger.Warn("hydrate: failed to decode persisted entry", "key", e.id, "error", err)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e.hasData || e.applied > 0 {
		return
	}
	e.status = StatusSuccess
	e.data = value
	e.hasData = true
	e.updatedAt = stored.UpdatedAt
	e.invalidated = true
	e.version++
	c.notifyLocked(e)

	if c.options.DebugMode {
		c.logger.Debug("hydrate: served persisted entry", "key", e.id, "updated_at", stored.UpdatedAt)
	}
}

func (c *Coordinator) persist(key Key, value any) {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		c.reportError(err)
		return
	}
	raw, err := c.serializer.Marshal(persistedEntry{
		Key:       key.String(),
		UpdatedAt: c.options.Now(),
		Data:      data,
	})
	if err != nil {
		c.reportError(err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.options.Timeout)
	defer cancel()

	if err := c.store.Set(ctx, storeKey(key), raw, c.options.PersistTTL); err != nil {
		c.reportError(err)
		if c.options.DebugMode {
			c.logger.Warn("persist: failed to store entry", "key", key.String(), "error", err)
		}
	}
}
