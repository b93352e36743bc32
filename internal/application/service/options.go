package service

import (
	"context"
	"time"

	"github.com/garyjia/uxone/internal/application/dispatcher"
	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Option configures optional collaborators shared by the services
type Option func(*options)

type options struct {
	now        func() time.Time
	metrics    port.MetricsRecorder
	dispatcher dispatcher.Dispatcher
	syncEvents bool
}

func newOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		metrics: port.NopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock injects the time source used for bucket keys, decision timestamps and cache expiry
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithDispatcher sets the dispatcher that receives domain events after commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithSynchronousEvents makes the services wait for event handlers before returning.
// Handler failures are still logged by the dispatcher and never returned.
func WithSynchronousEvents() Option {
	return func(o *options) {
		o.syncEvents = true
	}
}

func (o options) publish(ctx context.Context, evt *event.Event) {
	if o.dispatcher == nil || evt == nil {
		return
	}
	if o.syncEvents {
		_ = o.dispatcher.Dispatch(ctx, evt)
		return
	}
	o.dispatcher.DispatchAsync(ctx, evt)
}
