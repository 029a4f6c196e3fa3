package cache

import "time"

// Updater returns the provisional value of an entry and whether to apply it.
type Updater func(key Key, current any) (any, bool)

// Optimistic records provisional updates so they can be undone. Applied is
// false when no entry matched.
type Optimistic struct {
	Applied   bool
	Snapshots []Snapshot

	points []restorePoint
}

type restorePoint struct {
	e         *entry
	version   uint64
	status    Status
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	// discarded is set when the update dropped a request in flight.
	discarded bool
}

// SetQueriesData applies updater to every entry with data under prefix.
// Requests already in flight for those entries are discarded when they
// resolve so they cannot overwrite the provisional value.
func (c *Coordinator) SetQueriesData(prefix Key, updater Updater) Optimistic {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out Optimistic
	apply := func(e *entry) {
		if !e.hasData || !e.key.HasPrefix(prefix) {
			return
		}
		next, ok := updater(e.key, e.data)
		if !ok {
			return
		}

		out.Snapshots = append(out.Snapshots, c.snapshotLocked(e))
		point := restorePoint{
			e:         e,
			status:    e.status,
			data:      e.data,
			hasData:   e.hasData,
			err:       e.err,
			updatedAt: e.updatedAt,
			discarded: e.fetching && e.issued > e.applied,
		}

		e.data = next
		e.version++
		e.applied = e.issued
		point.version = e.version
		out.points = append(out.points, point)
		c.notifyLocked(e)
	}

	for _, e := range c.active {
		apply(e)
	}
	for _, e := range c.retainedEntries() {
		apply(e)
	}

	out.Applied = len(out.points) > 0
	return out
}

// Restore undoes an optimistic update. Entries changed since the update,
// for example by a newer response, are left alone. A restored entry whose
// in-flight response was dropped by the update is marked stale and, when
// observed, refetched. It returns the number of entries restored.
func (c *Coordinator) Restore(o Optimistic) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for _, p := range o.points {
		e := p.e
		if e.version != p.version {
			continue
		}
		e.status = p.status
		e.data = p.data
		e.hasData = p.hasData
		e.err = p.err
		e.updatedAt = p.updatedAt
		e.version++
		restored++
		if p.discarded {
			e.invalidated = true
			if len(e.subs) > 0 {
				c.startFetchLocked(e, true)
			}
		}
		c.notifyLocked(e)
	}
	return restored
}
