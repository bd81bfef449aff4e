package circuitbreaker

import (
	"sort"
	"time"
)

const (
	historySize    = 1000
	latencySamples = 100
)

// RequestRecord describes one completed request.
type RequestRecord struct {
	RequestID string        `json:"request_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// history is a fixed-size ring buffer of completed requests.
type history struct {
	records []RequestRecord
	next    int
	count   int
}

func newHistory(size int) *history {
	return &history{records: make([]RequestRecord, size)}
}

func (h *history) add(r RequestRecord) {
	h.records[h.next] = r
	h.next = (h.next + 1) % len(h.records)
	if h.count < len(h.records) {
		h.count++
	}
}

func (h *history) reset() {
	clear(h.records)
	h.next = 0
	h.count = 0
}

// each walks the buffer newest first until fn returns false.
func (h *history) each(fn func(RequestRecord) bool) {
	for i := 0; i < h.count; i++ {
		idx := (h.next - 1 - i + len(h.records)) % len(h.records)
		if !fn(h.records[idx]) {
			return
		}
	}
}

// recent counts the requests that completed at or after since.
func (h *history) recent(since time.Time) (total, failed int) {
	h.each(func(r RequestRecord) bool {
		if r.EndTime.Before(since) {
			return false
		}
		total++
		if !r.Success {
			failed++
		}
		return true
	})
	return total, failed
}

func (h *history) latencies(n int) []time.Duration {
	durations := make([]time.Duration, 0, min(n, h.count))
	h.each(func(r RequestRecord) bool {
		durations = append(durations, r.Duration)
		return len(durations) < n
	})
	return durations
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
