// Package sync broadcasts cache invalidations between processes over Redis
// Pub/Sub.
package sync

import (
	"context"
	"encoding/json"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/types"
)

// DefaultChannel is the Pub/Sub channel used when none is configured.
const DefaultChannel = "dataquery:invalidate"

// InvalidationEvent is an alias for types.InvalidationEvent
type InvalidationEvent = types.InvalidationEvent

// PubSubSynchronizer implements cache.Synchronizer using Redis Pub/Sub.
type PubSubSynchronizer struct {
	client         *redis.Client
	channel        string
	podID          string
	logger         cache.Logger
	pubsub         *redis.PubSub
	callbacks      []func(event InvalidationEvent)
	callbacksMutex sync.RWMutex
	done           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup
}

// NewPubSubSynchronizer creates a new Pub/Sub synchronizer. The client is
// shared and not closed by Close.
func NewPubSubSynchronizer(client *redis.Client, channel, podID string, logger cache.Logger) *PubSubSynchronizer {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = cache.NewNoOpLogger()
	}
	return &PubSubSynchronizer{
		client:    client,
		channel:   channel,
		podID:     podID,
		logger:    logger,
		callbacks: make([]func(event InvalidationEvent), 0),
		done:      make(chan struct{}),
	}
}

// Subscribe starts listening for invalidation events. It returns once Redis
// has confirmed the subscription.
func (ps *PubSubSynchronizer) Subscribe(ctx context.Context) error {
	ps.pubsub = ps.client.Subscribe(ctx, ps.channel)

	if _, err := ps.pubsub.Receive(ctx); err != nil {
		ps.pubsub.Close()
		ps.pubsub = nil
		return pkgerrors.Wrapf(err, "subscribe to %s", ps.channel)
	}

	ps.wg.Add(1)
	go ps.listenForEvents()

	return nil
}

// Publish publishes an invalidation event.
func (ps *PubSubSynchronizer) Publish(ctx context.Context, event InvalidationEvent) error {
	if event.Sender == "" {
		event.Sender = ps.podID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := ps.client.Publish(ctx, ps.channel, string(data)).Err(); err != nil {
		return pkgerrors.Wrapf(err, "publish to %s", ps.channel)
	}
	return nil
}

// OnInvalidate registers a callback for invalidation events.
func (ps *PubSubSynchronizer) OnInvalidate(callback func(event InvalidationEvent)) {
	ps.callbacksMutex.Lock()
	defer ps.callbacksMutex.Unlock()
	ps.callbacks = append(ps.callbacks, callback)
}

// Close stops listening. It is safe to call more than once.
func (ps *PubSubSynchronizer) Close() error {
	var err error
	ps.closeOnce.Do(func() {
		close(ps.done)
		if ps.pubsub != nil {
			err = ps.pubsub.Close()
		}
		ps.wg.Wait()
	})
	return err
}

// listenForEvents listens for invalidation events from Redis Pub/Sub.
func (ps *PubSubSynchronizer) listenForEvents() {
	defer ps.wg.Done()

	ch := ps.pubsub.Channel()

	for {
		select {
		case <-ps.done:
			return
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}

			var event InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				ps.logger.Warn("Sync: dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}

			// Don't invalidate your own writes
			if event.Sender == ps.podID {
				continue
			}

			ps.callbacksMutex.RLock()
			callbacks := ps.callbacks
			ps.callbacksMutex.RUnlock()

			for _, callback := range callbacks {
				callback(event)
			}
		}
	}
}
