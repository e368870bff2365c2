// Package eventbus delivers request lifecycle events to subscribers.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// ChannelEventBus dispatches events through a buffered channel drained by a
// fixed pool of workers.
type ChannelEventBus struct {
	mu             sync.RWMutex
	subscribers    map[EventType]map[string]EventHandler
	allSubscribers map[string]EventHandler
	closed         bool

	events chan queuedEvent
	done   chan struct{}
	wg     sync.WaitGroup

	bufferSize    int
	workerCount   int
	maxRetries    int
	retryInterval time.Duration
	logger        *slog.Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// Stats reports delivery counters.
type Stats struct {
	Delivered uint64
	Failed    uint64
}

// ChannelEventBusOption configures a ChannelEventBus.
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets the queue capacity.
func WithBufferSize(size int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if size > 0 {
			eb.bufferSize = size
		}
	}
}

// WithWorkerCount sets the number of dispatch workers.
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if count > 0 {
			eb.workerCount = count
		}
	}
}

// WithRetries sets how often a failing handler is retried.
func WithRetries(maxRetries int, retryInterval time.Duration) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.maxRetries = maxRetries
		eb.retryInterval = retryInterval
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *slog.Logger) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.logger = logger
	}
}

// NewChannelEventBus creates a bus and starts its workers.
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	eb := &ChannelEventBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		done:           make(chan struct{}),
		bufferSize:     100,
		workerCount:    2,
		maxRetries:     2,
		retryInterval:  50 * time.Millisecond,
		logger:         slog.Default(),
	}
	for _, option := range options {
		option(eb)
	}
	eb.logger = eb.logger.With("component", "eventbus")
	eb.events = make(chan queuedEvent, eb.bufferSize)

	for i := 0; i < eb.workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
	return eb
}

func (eb *ChannelEventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.done:
			return
		case qe := <-eb.events:
			eb.dispatch(qe)
		}
	}
}

func (eb *ChannelEventBus) dispatch(qe queuedEvent) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subscribers[qe.event.Type()])+len(eb.allSubscribers))
	for _, h := range eb.subscribers[qe.event.Type()] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allSubscribers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		eb.runHandler(qe.ctx, qe.event, h)
	}
}

func (eb *ChannelEventBus) runHandler(ctx context.Context, event Event, handler EventHandler) {
	var err error
	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		if err = handler(ctx, event); err == nil {
			eb.delivered.Add(1)
			return
		}
		if attempt == eb.maxRetries {
			break
		}
		time.Sleep(eb.retryInterval)
	}
	eb.failed.Add(1)
	eb.logger.Warn("event handler failed",
		"event_type", event.Type(),
		"request_id", event.RequestID(),
		"retries", eb.maxRetries,
		"error", err)
}

// Publish queues event for delivery. Handlers receive a context detached
// from ctx's cancellation so that cancellation events still arrive; ctx only
// bounds the wait for queue space.
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return ErrClosed
	}

	qe := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}
	select {
	case eb.events <- qe:
		return nil
	default:
	}
	select {
	case eb.events <- qe:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.done:
		return ErrClosed
	}
}

// Subscribe registers handler for eventTypes.
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", errors.New("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", errors.New("at least one event type is required")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	for _, t := range eventTypes {
		if eb.subscribers[t] == nil {
			eb.subscribers[t] = make(map[string]EventHandler)
		}
		eb.subscribers[t][id] = handler
	}
	return id, nil
}

// SubscribeAll registers handler for every event type.
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", errors.New("handler cannot be nil")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	eb.allSubscribers[id] = handler
	return id, nil
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return ErrClosed
	}
	delete(eb.allSubscribers, subscriptionID)
	for t, subs := range eb.subscribers {
		delete(subs, subscriptionID)
		if len(subs) == 0 {
			delete(eb.subscribers, t)
		}
	}
	return nil
}

// Stats returns a snapshot of the delivery counters.
func (eb *ChannelEventBus) Stats() Stats {
	return Stats{Delivered: eb.delivered.Load(), Failed: eb.failed.Load()}
}

// Close stops the workers and delivers whatever is still queued. It is safe
// to call more than once.
func (eb *ChannelEventBus) Close() error {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return nil
	}
	eb.closed = true
	eb.mu.Unlock()

	close(eb.done)
	eb.wg.Wait()

	for {
		select {
		case qe := <-eb.events:
			eb.dispatch(qe)
		default:
			return nil
		}
	}
}
