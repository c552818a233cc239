// Package notify delivers gate security events off the request path.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/gate"
	"github.com/aprovacriativos/backend/internal/metrics"
)

// Handler processes one security event. Errors are logged and dropped.
type Handler func(ctx context.Context, ev gate.SecurityEvent) error

// Dispatcher is a gate.Notifier backed by a bounded queue and a fixed set of
// workers. When the queue is full new events are dropped.
type Dispatcher struct {
	handler Handler
	workers int
	queue   chan gate.SecurityEvent
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ gate.Notifier = (*Dispatcher)(nil)

func NewDispatcher(handler Handler, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		handler: handler,
		workers: workers,
		queue:   make(chan gate.SecurityEvent, queueSize),
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// Start launches the workers. They run until Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.handle(ctx, ev)
			}
		}()
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev gate.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("ip", ev.IP).Msg("security event handler panicked")
			metrics.RecordNotification("failed")
		}
	}()
	if err := d.handler(ctx, ev); err != nil {
		d.log.Warn().Err(err).Str("ip", ev.IP).Str("kind", string(ev.Kind)).Msg("security event handling failed")
		metrics.RecordNotification("failed")
		return
	}
	metrics.RecordNotification("handled")
}

func (d *Dispatcher) Dispatch(ev gate.SecurityEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.log.Warn().Str("ip", ev.IP).Str("kind", string(ev.Kind)).Msg("notification queue full, dropping event")
		metrics.RecordNotification("dropped")
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
