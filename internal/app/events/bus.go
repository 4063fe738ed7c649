// Package events carries ledger and name events from the ledger to connected
// websocket sessions.
//
// The Bus is an unbounded FIFO: Publish never blocks the ledger, and a single
// Dispatcher drains it in publish order.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/dsa"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

// ErrClosed is returned by Next once the bus is closed and drained.
var ErrClosed = errors.New("event bus closed")

// Bus is a multi-producer, single-consumer event queue.
type Bus struct {
	queue  *dsa.Queue[domain.Event]
	signal chan struct{} // capacity 1; a pending token means "queue may be non-empty"

	// mu orders Publish against Close: once closed is shut, no push follows.
	mu     sync.Mutex
	closed chan struct{}
}

var _ domain.Publisher = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		queue:  dsa.NewQueue[domain.Event](),
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Publish enqueues ev. Events published after Close are dropped; an event
// accepted before Close is always returned by Next.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		return
	default:
	}
	b.queue.Push(ev)
	b.mu.Unlock()

	observability.EventsPublished.WithLabelValues(ev.Kind.String()).Inc()
	observability.EventQueueDepth.Set(float64(b.queue.Len()))

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, ctx is done, or the bus is closed
// and empty. Events still queued at Close are returned before ErrClosed.
func (b *Bus) Next(ctx context.Context) (domain.Event, error) {
	for {
		if ev, ok := b.queue.Pop(); ok {
			observability.EventQueueDepth.Set(float64(b.queue.Len()))
			return ev, nil
		}
		select {
		case <-b.signal:
		case <-b.closed:
			if ev, ok := b.queue.Pop(); ok {
				return ev, nil
			}
			return domain.Event{}, ErrClosed
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		}
	}
}

// Len returns the number of undelivered events.
func (b *Bus) Len() int {
	return b.queue.Len()
}

// Close wakes any waiting consumer. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
}
