// Package cache implements the query cache coordinator: a keyed cache of
// in-flight and completed requests that deduplicates fetches, serves stale
// data while revalidating and invalidates entries after writes.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huykn/dataquery/types"
)

// Coordinator is the single owner of cached query state. Entries are mutated
// only under its lock, in response to observations, fetch completions and
// invalidations.
type Coordinator struct {
	mu     sync.Mutex
	active map[string]*entry

	// retained holds entries without subscribers; index lets invalidation
	// reach them without iterating the local cache.
	retained LocalCache
	idxMu    sync.Mutex
	index    map[string]*entry

	store        Store
	synchronizer Synchronizer
	serializer   Marshaller
	logger       Logger
	options      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed int32
	stats  Stats
}

// New creates a Coordinator. The Store and Synchronizer in opts, when set,
// are owned by the coordinator and closed by Close.
func New(opts Options) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Set defaults for optional fields
	if opts.LocalCacheFactory == nil {
		opts.LocalCacheFactory = NewLRUCacheFactory(opts.LocalCacheConfig.MaxSize)
	}
	if opts.Marshaller == nil {
		opts.Marshaller = NewJSONMarshaller()
	}
	if opts.Logger == nil {
		opts.Logger = NewNoOpLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		active:       make(map[string]*entry),
		index:        make(map[string]*entry),
		store:        opts.Store,
		synchronizer: opts.Synchronizer,
		serializer:   opts.Marshaller,
		logger:       opts.Logger,
		options:      opts,
		ctx:          ctx,
		cancel:       cancel,
	}

	local, err := opts.LocalCacheFactory.Create(opts.GCTime, c.onEvict)
	if err != nil {
		cancel()
		return nil, err
	}
	c.retained = local

	if c.synchronizer != nil {
		subCtx, subCancel := context.WithTimeout(ctx, opts.Timeout)
		defer subCancel()

		if err := c.synchronizer.Subscribe(subCtx); err != nil {
			c.Close()
			return nil, err
		}
		c.synchronizer.OnInvalidate(c.handleSyncEvent)
	}

	return c, nil
}

// Observe attaches a subscriber to key and starts a fetch when the entry has
// no data, is stale, or failed. Observing a key whose fetch is in flight
// joins that fetch.
func (c *Coordinator) Observe(key Key, opts QueryOptions) (*Subscription, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.acquireLocked(key)
	if opts.Fetch != nil {
		e.opts = opts
	}

	sub := newSubscription(c, e)
	e.subs[sub] = struct{}{}

	now := c.options.Now()
	switch {
	case e.fetching:
		atomic.AddInt64(&c.stats.Joins, 1)
		if c.options.DebugMode {
			c.logger.Debug("Observe: joined in-flight fetch", "key", e.id)
		}
	case !e.hasData:
		atomic.AddInt64(&c.stats.Misses, 1)
		c.startFetchLocked(e, false)
	case e.status == StatusError || e.isStale(now, c.options.StaleTime):
		atomic.AddInt64(&c.stats.StaleHits, 1)
		if c.options.DebugMode {
			c.logger.Debug("Observe: serving stale data, revalidating", "key", e.id)
		}
		c.startFetchLocked(e, false)
	default:
		atomic.AddInt64(&c.stats.Hits, 1)
	}

	return sub, nil
}

// Fetch observes key until it settles and returns the snapshot. A failed
// entry is reported through the returned error as well.
func (c *Coordinator) Fetch(ctx context.Context, key Key, opts QueryOptions) (Snapshot, error) {
	sub, err := c.Observe(key, opts)
	if err != nil {
		return Snapshot{}, err
	}
	defer sub.Close()

	snap, err := sub.Wait(ctx)
	if err != nil {
		return snap, err
	}
	if snap.Status == StatusError {
		return snap, snap.Err
	}
	return snap, nil
}

// Peek returns the current state of key without observing it.
func (c *Coordinator) Peek(key Key) (Snapshot, bool) {
	id := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.active[id]; ok {
		return c.snapshotLocked(e), true
	}
	if v, ok := c.retained.Get(id); ok {
		return c.snapshotLocked(v.(*entry)), true
	}
	return Snapshot{}, false
}

// Invalidate marks every entry matching one of prefixes stale, refetches
// those with subscribers and broadcasts the invalidation when a
// Synchronizer is configured.
func (c *Coordinator) Invalidate(ctx context.Context, prefixes ...Key) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrCacheClosed
	}
	if len(prefixes) == 0 {
		return nil
	}

	c.invalidateLocal(prefixes)

	if c.synchronizer == nil {
		return nil
	}
	event := InvalidationEvent{
		Sender:   c.options.PodID,
		Action:   ActionInvalidate,
		Prefixes: keyStrings(prefixes),
	}
	if err := c.synchronizer.Publish(ctx, event); err != nil {
		c.reportError(err)
		if c.options.DebugMode {
			c.logger.Warn("Invalidate: failed to publish synchronization event", "error", err)
		}
		return err
	}
	return nil
}

// ApplyMutation invalidates the prefixes declared by a successful mutation.
func (c *Coordinator) ApplyMutation(ctx context.Context, d types.MutationDescriptor) error {
	prefixes := make([]Key, 0, len(d.Invalidates))
	for _, s := range d.Invalidates {
		k, err := ParseKey(s)
		if err != nil {
			return err
		}
		prefixes = append(prefixes, k)
	}
	if c.options.DebugMode {
		c.logger.Debug("ApplyMutation", "resource", d.Resource, "operation", d.Operation, "ids", d.AffectedIDs)
	}
	return c.Invalidate(ctx, prefixes...)
}

// Remove drops retained entries matching prefixes together with their
// persisted copies. Observed entries cannot be removed; they are
// invalidated instead.
func (c *Coordinator) Remove(ctx context.Context, prefixes ...Key) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrCacheClosed
	}
	if len(prefixes) == 0 {
		return nil
	}

	removed := c.removeLocal(prefixes)

	if c.store != nil {
		for _, k := range removed {
			if err := c.store.Delete(ctx, storeKey(k)); err != nil {
				c.reportError(err)
				return err
			}
		}
	}
	if c.synchronizer != nil {
		event := InvalidationEvent{
			Sender:   c.options.PodID,
			Action:   ActionRemove,
			Prefixes: keyStrings(prefixes),
		}
		if err := c.synchronizer.Publish(ctx, event); err != nil {
			c.reportError(err)
			return err
		}
	}
	return nil
}

func (c *Coordinator) removeLocal(prefixes []Key) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []Key
	for _, e := range c.retainedEntries() {
		if !matchesAny(e.key, prefixes) {
			continue
		}
		c.unindex(e.id, e)
		c.retained.Delete(e.id)
		removed = append(removed, e.key)
	}
	for _, e := range c.active {
		if !matchesAny(e.key, prefixes) {
			continue
		}
		e.invalidated = true
		if len(e.subs) > 0 {
			c.startFetchLocked(e, true)
		}
		c.notifyLocked(e)
	}
	return removed
}

// Clear drops every retained entry and the persisted store content, and
// refetches the entries still observed.
func (c *Coordinator) Clear(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrCacheClosed
	}

	c.clearLocal()

	if c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			c.reportError(err)
			return err
		}
	}
	if c.synchronizer != nil {
		event := InvalidationEvent{Sender: c.options.PodID, Action: ActionClear}
		if err := c.synchronizer.Publish(ctx, event); err != nil {
			c.reportError(err)
			return err
		}
	}
	return nil
}

// Close stops background work and releases the retention cache, the Store
// and the Synchronizer. In-flight fetches are cancelled.
func (c *Coordinator) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	c.cancel()
	c.wg.Wait()

	var errs []error
	if c.synchronizer != nil {
		if err := c.synchronizer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.retained.Close()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Stats returns coordinator statistics.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	active := int64(len(c.active))
	c.mu.Unlock()

	c.idxMu.Lock()
	retained := int64(len(c.index))
	c.idxMu.Unlock()

	return Stats{
		Hits:            atomic.LoadInt64(&c.stats.Hits),
		StaleHits:       atomic.LoadInt64(&c.stats.StaleHits),
		Misses:          atomic.LoadInt64(&c.stats.Misses),
		Joins:           atomic.LoadInt64(&c.stats.Joins),
		Fetches:         atomic.LoadInt64(&c.stats.Fetches),
		Retries:         atomic.LoadInt64(&c.stats.Retries),
		Discarded:       atomic.LoadInt64(&c.stats.Discarded),
		Invalidations:   atomic.LoadInt64(&c.stats.Invalidations),
		Evictions:       atomic.LoadInt64(&c.stats.Evictions),
		ActiveEntries:   active,
		RetainedEntries: retained,
	}
}

// acquireLocked returns the entry for key, promoting a retained entry or
// creating an idle one. Exactly one entry exists per key.
func (c *Coordinator) acquireLocked(key Key) *entry {
	id := key.String()
	if e, ok := c.active[id]; ok {
		return e
	}
	if v, ok := c.retained.Get(id); ok {
		e := v.(*entry)
		c.unindex(id, e)
		c.retained.Delete(id)
		c.active[id] = e
		return e
	}
	e := newEntry(key)
	c.active[id] = e
	return e
}

// retireLocked moves an entry without subscribers into the retention cache.
func (c *Coordinator) retireLocked(e *entry) {
	if c.active[e.id] != e {
		return
	}
	delete(c.active, e.id)

	if !e.hasData && e.status != StatusError {
		return
	}

	c.idxMu.Lock()
	c.index[e.id] = e
	c.idxMu.Unlock()

	if !c.retained.Set(e.id, e, 1) {
		c.unindex(e.id, e)
	}
	if c.options.DebugMode {
		c.logger.Debug("retire: entry retained", "key", e.id)
	}
}

// onEvict runs on the local cache's goroutine; it must only touch the index.
func (c *Coordinator) onEvict(key string, value any) {
	e, ok := value.(*entry)
	if !ok {
		return
	}
	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	if cur, ok := c.index[key]; ok && cur == e {
		delete(c.index, key)
		atomic.AddInt64(&c.stats.Evictions, 1)
	}
}

func (c *Coordinator) unindex(id string, e *entry) {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	if cur, ok := c.index[id]; ok && cur == e {
		delete(c.index, id)
	}
}

func (c *Coordinator) retainedEntries() []*entry {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	out := make([]*entry, 0, len(c.index))
	for _, e := range c.index {
		out = append(out, e)
	}
	return out
}

func (c *Coordinator) invalidateLocal(prefixes []Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, e := range c.active {
		if !matchesAny(e.key, prefixes) {
			continue
		}
		count++
		e.invalidated = true
		if len(e.subs) > 0 {
			// Force: a fetch already in flight may predate the write.
			c.startFetchLocked(e, true)
		}
		c.notifyLocked(e)
	}

	for _, e := range c.retainedEntries() {
		if matchesAny(e.key, prefixes) {
			e.invalidated = true
			count++
		}
	}

	atomic.AddInt64(&c.stats.Invalidations, int64(count))
	if c.options.DebugMode {
		c.logger.Debug("Invalidate: marked entries stale", "prefixes", keyStrings(prefixes), "count", count)
	}
	return count
}

func (c *Coordinator) clearLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idxMu.Lock()
	c.index = make(map[string]*entry)
	c.idxMu.Unlock()
	c.retained.Clear()

	for _, e := range c.active {
		e.invalidated = true
		if len(e.subs) > 0 {
			c.startFetchLocked(e, true)
		}
		c.notifyLocked(e)
	}
}

// handleSyncEvent applies an invalidation broadcast by another process.
func (c *Coordinator) handleSyncEvent(event InvalidationEvent) {
	if atomic.LoadInt32(&c.closed) != 0 || event.Sender == c.options.PodID {
		return
	}
	if c.options.DebugMode {
		c.logger.Info("Received synchronization event", "action", event.Action, "sender", event.Sender)
	}

	switch event.Action {
	case ActionInvalidate:
		prefixes := make([]Key, 0, len(event.Prefixes))
		for _, s := range event.Prefixes {
			k, err := ParseKey(s)
			if err != nil {
				c.reportError(err)
				continue
			}
			prefixes = append(prefixes, k)
		}
		c.invalidateLocal(prefixes)
	case ActionRemove:
		prefixes := make([]Key, 0, len(event.Prefixes))
		for _, s := range event.Prefixes {
			if k, err := ParseKey(s); err == nil {
				prefixes = append(prefixes, k)
			}
		}
		c.removeLocal(prefixes)
	case ActionClear:
		c.clearLocal()
	default:
		if c.options.DebugMode {
			c.logger.Warn("Sync: unknown action", "action", event.Action, "sender", event.Sender)
		}
	}
}

func (c *Coordinator) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := sub.e
	delete(e.subs, sub)
	if len(e.subs) == 0 && !e.fetching {
		c.retireLocked(e)
	}
}

func (c *Coordinator) notifyLocked(e *entry) {
	for sub := range e.subs {
		sub.signal()
	}
}

func (c *Coordinator) snapshotLocked(e *entry) Snapshot {
	return e.snapshot(c.options.Now(), c.options.StaleTime)
}

func (c *Coordinator) reportError(err error) {
	if c.options.OnError != nil {
		c.options.OnError(err)
	}
}

func keyStrings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
