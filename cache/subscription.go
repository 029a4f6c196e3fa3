package cache

import (
	"context"
	"sync"
)

// Subscription is one observer of an entry. It keeps the entry active until
// Close is called.
type Subscription struct {
	c       *Coordinator
	e       *entry
	changes chan struct{}
	once    sync.Once
}

func newSubscription(c *Coordinator, e *entry) *Subscription {
	return &Subscription{
		c:       c,
		e:       e,
		changes: make(chan struct{}, 1),
	}
}

// signal coalesces notifications; receivers re-read the snapshot.
func (s *Subscription) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Key returns the observed key.
func (s *Subscription) Key() Key {
	return s.e.key
}

// Snapshot returns the current state of the observed entry.
func (s *Subscription) Snapshot() Snapshot {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.snapshotLocked(s.e)
}

// Changes is signalled whenever the observed entry changes.
func (s *Subscription) Changes() <-chan struct{} {
	return s.changes
}

// Refetch requests fresh data, joining a fetch already in flight.
func (s *Subscription) Refetch() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if _, ok := s.e.subs[s]; !ok {
		return
	}
	s.c.startFetchLocked(s.e, false)
}

// Wait blocks until the entry has settled.
func (s *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	return s.Await(ctx, Snapshot.Settled)
}

// Await blocks until cond holds for the entry's snapshot.
func (s *Subscription) Await(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		snap := s.Snapshot()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-s.changes:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-s.c.ctx.Done():
			return snap, ErrCacheClosed
		}
	}
}

// Close detaches the subscriber. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.c.unsubscribe(s)
	})
}
