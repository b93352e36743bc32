package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/garyjia/uxone/internal/domain/event"
)

// ErrClosed is returned when an event is dispatched after Close
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher delivers domain events to in-process subscribers
type Dispatcher interface {
	// Subscribe registers a named handler for one event type
	Subscribe(eventType event.Type, name, description string, handler Handler)

	// Dispatch runs every handler for evt in subscription order and waits for them.
	// A failing handler does not stop the others; failures are joined.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs the handlers in the background.
	// Handlers see a context detached from ctx cancellation.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Subscriptions lists the registered handlers ordered by event type
	Subscriptions() []Subscription

	// Stats reports delivery counters
	Stats() Stats

	// Close rejects new events and waits for background handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Stats counts handler invocations
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	InFlight  int64 `json:"in_flight"`
}

type eventDispatcher struct {
	mu     sync.RWMutex
	subs   map[event.Type][]Subscription
	closed bool
	logger Logger

	wg        sync.WaitGroup
	delivered atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subs: make(map[event.Type][]Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name, description string, handler Handler) {
	d.mu.Lock()
	d.subs[eventType] = append(d.subs[eventType], Subscription{
		Name:        name,
		EventType:   eventType,
		Description: description,
		handler:     handler,
	})
	d.mu.Unlock()

	d.logInfo("Event handler subscribed", "event_type", eventType, "handler", name)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	subs, err := d.handlersFor(evt)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		if err := d.deliver(ctx, evt, sub); err != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", sub.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	detached := context.WithoutCancel(ctx)

	// wg.Add happens under the read lock so Close cannot start waiting in between
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logError("Event dropped, dispatcher closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"aggregate_code", evt.AggregateCode)
		return
	}

	for _, sub := range d.subs[evt.Type] {
		d.wg.Add(1)
		d.inFlight.Add(1)
		go func(sub Subscription) {
			defer func() {
				d.inFlight.Add(-1)
				d.wg.Done()
			}()
			_ = d.deliver(detached, evt, sub)
		}(sub)
	}
}

func (d *eventDispatcher) Subscriptions() []Subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.subs))
	for t := range d.subs {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var out []Subscription
	for _, t := range types {
		for _, sub := range d.subs[event.Type(t)] {
			sub.handler = nil
			out = append(out, sub)
		}
	}
	return out
}

func (d *eventDispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		InFlight:  d.inFlight.Load(),
	}
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	d.logInfo("Waiting for event handlers", "in_flight", d.inFlight.Load())
	d.wg.Wait()
	d.logInfo("Dispatcher closed", "delivered", d.delivered.Load(), "failed", d.failed.Load())
	return nil
}

// handlersFor snapshots the subscriptions for evt
func (d *eventDispatcher) handlersFor(evt *event.Event) ([]Subscription, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("dispatch %s: %w", evt.Type, ErrClosed)
	}
	return append([]Subscription(nil), d.subs[evt.Type]...), nil
}

// deliver runs one handler, converting a panic into an error, and counts the outcome
func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event, sub Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err == nil {
			d.delivered.Add(1)
			return
		}
		d.failed.Add(1)
		d.logError("Event handler failed",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"aggregate_code", evt.AggregateCode,
			"handler", sub.Name,
			"error", err)
	}()

	return sub.handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
