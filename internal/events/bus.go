package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Bus fans events out to its observers from a single goroutine, so
// observers see events one at a time in publication order.
type Bus struct {
	eventCh   chan Event
	logger    *slog.Logger
	mutex     sync.RWMutex
	observers []Observer
	dropped   atomic.Int64
}

func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	return &Bus{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
	}
}

func (b *Bus) Subscribe(o Observer) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.observers = append(b.observers, o)
}

// Publish enqueues e. When the buffer is full the event is dropped and
// counted rather than stalling the request path.
func (b *Bus) Publish(e Event) {
	select {
	case b.eventCh <- e:
	default:
		if b.dropped.Add(1) == 1 {
			b.logger.Warn("Event buffer full, dropping events", slog.String("type", string(e.Type())))
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	b.logger.Info("Event bus started")
	defer b.logger.Info("Event bus stopped")

	for {
		select {
		case e := <-b.eventCh:
			b.dispatch(e)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			b.drain()
			return
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mutex.RLock()
	observers := b.observers
	b.mutex.RUnlock()

	for _, o := range observers {
		e.dispatch(o)
	}
}

func (b *Bus) drain() {
	for {
		select {
		case e := <-b.eventCh:
			b.dispatch(e)
		default:
			return
		}
	}
}
