package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrReviewQueueFull = errors.New("review queue full")

// FallbackRegistry holds named fallback strategies so call sites can pick
// one by configuration. Execute never consults it on its own.
type FallbackRegistry struct {
	mutex     sync.RWMutex
	fallbacks map[string]Fallback
}

func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{fallbacks: make(map[string]Fallback)}
}

// Register adds fb under name, replacing any previous strategy.
func (r *FallbackRegistry) Register(name string, fb Fallback) error {
	if name == "" {
		return errors.New("fallback name must not be empty")
	}
	if fb == nil {
		return fmt.Errorf("fallback %q must not be nil", name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.fallbacks[name] = fb
	return nil
}

func (r *FallbackRegistry) Lookup(name string) (Fallback, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	fb, ok := r.fallbacks[name]
	return fb, ok
}

func (r *FallbackRegistry) Names() []string {
	r.mutex.RLock()
	names := make([]string, 0, len(r.fallbacks))
	for name := range r.fallbacks {
		names = append(names, name)
	}
	r.mutex.RUnlock()

	sort.Strings(names)
	return names
}

// Static always returns value, e.g. a cached or degraded response.
func Static(value any) Fallback {
	return func(context.Context, error) (any, error) {
		return value, nil
	}
}

// ReviewTicket stands in for the result of a call that was deferred for
// manual review.
type ReviewTicket struct {
	ID       string    `json:"id"`
	Service  string    `json:"service"`
	Kind     Kind      `json:"kind"`
	Cause    string    `json:"cause"`
	QueuedAt time.Time `json:"queued_at"`
}

// ReviewQueue is a bounded FIFO of deferred calls.
type ReviewQueue struct {
	mutex    sync.Mutex
	tickets  []ReviewTicket
	capacity int
	clock    func() time.Time
}

func NewReviewQueue(capacity int) *ReviewQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ReviewQueue{capacity: capacity, clock: time.Now}
}

func (q *ReviewQueue) add(t ReviewTicket) (ReviewTicket, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.tickets) >= q.capacity {
		return ReviewTicket{}, ErrReviewQueueFull
	}
	t.QueuedAt = q.clock()
	q.tickets = append(q.tickets, t)
	return t, nil
}

// Take removes and returns the oldest ticket.
func (q *ReviewQueue) Take() (ReviewTicket, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.tickets) == 0 {
		return ReviewTicket{}, false
	}
	t := q.tickets[0]
	q.tickets = q.tickets[1:]
	return t, true
}

func (q *ReviewQueue) Pending() []ReviewTicket {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	tickets := make([]ReviewTicket, len(q.tickets))
	copy(tickets, q.tickets)
	return tickets
}

func (q *ReviewQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.tickets)
}

// Deferred queues the failed call for manual review and returns its
// ReviewTicket as the result. It fails with ErrReviewQueueFull once the
// queue is at capacity.
func Deferred(queue *ReviewQueue) Fallback {
	return func(_ context.Context, cause error) (any, error) {
		ticket := ReviewTicket{ID: uuid.NewString(), Kind: KindOf(cause)}
		if cause != nil {
			ticket.Cause = cause.Error()
		}
		var ce *CircuitError
		if errors.As(cause, &ce) {
			ticket.Service = ce.Service
		}

		queued, err := queue.add(ticket)
		if err != nil {
			return nil, err
		}
		return queued, nil
	}
}
