package events

import (
	"context"
	"sync"
	"time"

	"restaurant-pos/internal/common/logger"
)

// Dispatcher hands events to a Publisher from a single background worker
// so request handlers never wait on the broker. When the buffer is full
// the event is dropped and logged.
type Dispatcher struct {
	pub     Publisher
	lg      *logger.Logger
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(pub Publisher, lg *logger.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		pub:     pub,
		lg:      lg,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Dispatch(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.lg.Warn("event_dropped", map[string]any{"type": e.Type, "entity_id": e.EntityID})
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.pub.Publish(ctx, e); err != nil {
			d.lg.Error("event_publish_failed", err, map[string]any{"type": e.Type, "entity_id": e.EntityID})
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffer is drained or
// ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
