package circuitbreaker

import "time"

// Failure is a single failed request kept in a circuit's sliding window.
type Failure struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"error_message"`
	Type      string    `json:"error_type"`
	RequestID string    `json:"request_id"`
}

// failureWindow is a deque ordered by timestamp. Eviction from the front is
// O(1); the backing slice is compacted once the dead prefix dominates.
type failureWindow struct {
	items []Failure
	head  int
}

const compactThreshold = 64

func (w *failureWindow) push(f Failure) {
	w.items = append(w.items, f)
}

func (w *failureWindow) prune(cutoff time.Time) {
	for w.head < len(w.items) && w.items[w.head].Timestamp.Before(cutoff) {
		w.items[w.head] = Failure{}
		w.head++
	}

	switch {
	case w.head == len(w.items):
		w.items = w.items[:0]
		w.head = 0
	case w.head >= compactThreshold && w.head*2 >= len(w.items):
		n := copy(w.items, w.items[w.head:])
		clear(w.items[n:])
		w.items = w.items[:n]
		w.head = 0
	}
}

func (w *failureWindow) len() int {
	return len(w.items) - w.head
}

func (w *failureWindow) clear() {
	w.items = nil
	w.head = 0
}

// last returns a copy of the newest n entries, oldest first.
func (w *failureWindow) last(n int) []Failure {
	live := w.items[w.head:]
	if n >= 0 && len(live) > n {
		live = live[len(live)-n:]
	}

	out := make([]Failure, len(live))
	copy(out, live)
	return out
}

func (w *failureWindow) snapshot() []Failure {
	return w.last(-1)
}
