// Package websocket implements core.EventSink as a fan-out broadcaster
// over a buffered channel, adapted from the teacher's dashboard real-time
// event bus: a Subscribe/Unsubscribe registry, a background broadcast
// worker, and per-subscriber concurrent delivery that never blocks the
// caller on a slow or dead subscriber (spec.md §6: "fire-and-forget").
package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sheetsync/sheetsync/internal/events"
)

// EventBus manages event subscriptions and broadcasting.
type EventBus interface {
	Subscribe(subscriber EventSubscriber) error
	Unsubscribe(subscriber EventSubscriber) error
	Publish(event events.Event) error
	GetActiveSubscribers() int
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DefaultEventBus is the default implementation of EventBus.
type DefaultEventBus struct {
	subscribers map[EventSubscriber]bool
	mu          sync.RWMutex

	eventChan chan events.Event
	sequence  int64

	logger  *slog.Logger
	metrics *Metrics

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEventBus creates a new EventBus.
func NewEventBus(logger *slog.Logger, metrics *Metrics) *DefaultEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultEventBus{
		subscribers: make(map[EventSubscriber]bool),
		eventChan:   make(chan events.Event, 1000),
		logger:      logger.With("component", "event_bus"),
		metrics:     metrics,
		stopChan:    make(chan struct{}),
	}
}

func (b *DefaultEventBus) Subscribe(subscriber EventSubscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[subscriber] = true

	b.logger.Info("subscriber added", "subscriber_id", subscriber.ID(), "total_subscribers", len(b.subscribers))
	if b.metrics != nil {
		b.metrics.ConnectionsActive.Set(float64(len(b.subscribers)))
	}
	return nil
}

func (b *DefaultEventBus) Unsubscribe(subscriber EventSubscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[subscriber]; ok {
		delete(b.subscribers, subscriber)
		subscriber.Close()

		b.logger.Info("subscriber removed", "subscriber_id", subscriber.ID(), "total_subscribers", len(b.subscribers))
		if b.metrics != nil {
			b.metrics.ConnectionsActive.Set(float64(len(b.subscribers)))
		}
	}
	return nil
}

// Publish assigns the event a sequence number and queues it for
// broadcast; it never blocks on delivery.
func (b *DefaultEventBus) Publish(event events.Event) error {
	event.Sequence = atomic.AddInt64(&b.sequence, 1)

	select {
	case b.eventChan <- event:
		return nil
	default:
		b.logger.Warn("event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
		if b.metrics != nil {
			b.metrics.ErrorsTotal.WithLabelValues("channel_full").Inc()
		}
		return ErrEventChannelFull
	}
}

func (b *DefaultEventBus) GetActiveSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *DefaultEventBus) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.broadcastWorker(ctx)
	b.logger.Info("event bus started")
	return nil
}

func (b *DefaultEventBus) Stop(ctx context.Context) error {
	b.logger.Info("stopping event bus")
	close(b.stopChan)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *DefaultEventBus) broadcastWorker(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case event := <-b.eventChan:
			b.broadcastEvent(event)
		}
	}
}

func (b *DefaultEventBus) broadcastEvent(event events.Event) {
	start := time.Now()

	b.mu.RLock()
	subscribers := make([]EventSubscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, subscriber := range subscribers {
		wg.Add(1)
		go func(sub EventSubscriber) {
			defer wg.Done()

			select {
			case <-sub.Context().Done():
				b.Unsubscribe(sub)
				return
			default:
			}

			if err := sub.Send(event); err != nil {
				b.logger.Warn("failed to send event to subscriber", "subscriber_id", sub.ID(), "event_type", event.Type, "error", err)
				b.Unsubscribe(sub)
			}
		}(subscriber)
	}
	wg.Wait()

	if b.metrics != nil {
		b.metrics.EventsTotal.WithLabelValues(event.Type).Inc()
		b.metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
	}
}
