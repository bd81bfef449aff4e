package circuitbreaker

import (
	"sync/atomic"
	"time"
)

// Status is a point-in-time view of a circuit.
type Status struct {
	Name              string        `json:"name"`
	State             State         `json:"state"`
	Settings          Settings      `json:"settings"`
	Metrics           Counters      `json:"metrics"`
	FailureRate       float64       `json:"failure_rate"`
	RecentRequests    int           `json:"recent_requests"`
	RecentFailureRate float64       `json:"recent_failure_rate"`
	WindowFailures    int           `json:"window_failures"`
	AvgResponse       time.Duration `json:"avg_response"`
	P95Response       time.Duration `json:"p95_response"`
	Availability      float64       `json:"availability"`
	ActiveRequests    int           `json:"active_requests"`
	HalfOpenTests     int           `json:"half_open_tests"`
	SuccessCount      int           `json:"success_count"`
	OpenCount         int           `json:"open_count"`
	OpenedAt          time.Time     `json:"opened_at"`
	NextRetryTime     time.Time     `json:"next_retry_time"`
	LastFailureTime   time.Time     `json:"last_failure_time"`
	LastSuccessTime   time.Time     `json:"last_success_time"`
	Failures          []Failure     `json:"failures"`
	StateChanges      []Transition  `json:"state_changes"`
}

func (cb *CircuitBreaker) Status() Status {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.clock()
	cb.failures.prune(now.Add(-cb.settings.WindowDuration))

	status := Status{
		Name:            cb.name,
		State:           cb.state,
		Settings:        cb.settings,
		Metrics:         cb.counters,
		WindowFailures:  cb.failures.len(),
		Availability:    cb.availabilityLocked(now),
		ActiveRequests:  len(cb.active),
		HalfOpenTests:   cb.halfOpenTests,
		SuccessCount:    cb.successCount,
		OpenCount:       cb.openCount,
		OpenedAt:        cb.openedAt,
		NextRetryTime:   cb.nextRetryTime,
		LastFailureTime: cb.lastFailureTime,
		LastSuccessTime: cb.lastSuccessTime,
		Failures:        cb.failures.snapshot(),
		StateChanges:    append([]Transition(nil), cb.transitions...),
	}

	if cb.counters.Requests > 0 {
		status.FailureRate = float64(cb.counters.Failures) / float64(cb.counters.Requests)
	}

	total, failed := cb.recentLocked(now)
	status.RecentRequests = total
	if total > 0 {
		status.RecentFailureRate = float64(failed) / float64(total)
	}

	latencies := cb.history.latencies(latencySamples)
	status.AvgResponse = average(latencies)
	status.P95Response = percentile(latencies, 0.95)

	return status
}

// Persisted is the durable subset of a circuit's state.
type Persisted struct {
	State           State        `json:"state"`
	Metrics         Counters     `json:"metrics"`
	Failures        []Failure    `json:"failures"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	LastSuccessTime time.Time    `json:"last_success_time"`
	OpenedAt        time.Time    `json:"opened_at"`
	NextRetryTime   time.Time    `json:"next_retry_time"`
	OpenCount       int          `json:"open_count"`
	StateChanges    []Transition `json:"state_changes"`
}

func (cb *CircuitBreaker) Export() Persisted {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Persisted{
		State:           cb.state,
		Metrics:         cb.counters,
		Failures:        cb.failures.last(maxPersistedFailures),
		LastFailureTime: cb.lastFailureTime,
		LastSuccessTime: cb.lastSuccessTime,
		OpenedAt:        cb.openedAt,
		NextRetryTime:   cb.nextRetryTime,
		OpenCount:       cb.openCount,
		StateChanges:    append([]Transition(nil), cb.transitions...),
	}
}

// Restore replaces the circuit's durable state with p. Failures that have
// already left the window are dropped and in-flight requests are forgotten.
func (cb *CircuitBreaker) Restore(p Persisted) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.clock()

	cb.state = p.State
	cb.epoch++
	cb.counters = p.Metrics
	cb.lastFailureTime = p.LastFailureTime
	cb.lastSuccessTime = p.LastSuccessTime
	cb.openedAt = p.OpenedAt
	cb.nextRetryTime = p.NextRetryTime
	cb.openCount = p.OpenCount
	cb.active = make(map[string]activeRequest)
	cb.halfOpenTests = 0
	cb.halfOpenSuccesses = 0
	cb.successCount = 0
	cb.pending = nil

	cb.failures.clear()
	for _, f := range p.Failures {
		cb.failures.push(f)
	}
	cb.failures.prune(now.Add(-cb.settings.WindowDuration))

	cb.transitions = append([]Transition(nil), p.StateChanges...)
	cb.firstChange = time.Time{}
	cb.lastChange = time.Time{}
	cb.closedFor = 0
	cb.closedAt = time.Time{}

	var current State
	for i, t := range cb.transitions {
		if i == 0 {
			cb.firstChange = t.Timestamp
		} else if current == StateClosed {
			cb.closedFor += t.Timestamp.Sub(cb.lastChange)
		}
		cb.lastChange = t.Timestamp
		current = t.To
		if t.To == StateClosed {
			cb.closedAt = t.Timestamp
		}
	}
}

// GlobalMetrics is a snapshot of the process-wide counters.
type GlobalMetrics struct {
	TotalRequests     int64 `json:"total_requests"`
	TotalFailures     int64 `json:"total_failures"`
	TotalTimeouts     int64 `json:"total_timeouts"`
	TotalCircuitOpens int64 `json:"total_circuit_opens"`
	TotalRecoveries   int64 `json:"total_recoveries"`
	TotalFallbacks    int64 `json:"total_fallbacks"`
	TotalRejections   int64 `json:"total_rejections"`
}

// FailureRate is TotalFailures / TotalRequests, or 0 before any request.
func (g GlobalMetrics) FailureRate() float64 {
	if g.TotalRequests == 0 {
		return 0
	}
	return float64(g.TotalFailures) / float64(g.TotalRequests)
}

// GlobalCounters are updated concurrently by every circuit's callers.
type GlobalCounters struct {
	requests     atomic.Int64
	failures     atomic.Int64
	timeouts     atomic.Int64
	circuitOpens atomic.Int64
	recoveries   atomic.Int64
	fallbacks    atomic.Int64
	rejections   atomic.Int64
}

func (g *GlobalCounters) Request()     { g.requests.Add(1) }
func (g *GlobalCounters) Timeout()     { g.timeouts.Add(1) }
func (g *GlobalCounters) CircuitOpen() { g.circuitOpens.Add(1) }
func (g *GlobalCounters) Recovery()    { g.recoveries.Add(1) }
func (g *GlobalCounters) Fallback()    { g.fallbacks.Add(1) }

func (g *GlobalCounters) Failure() {
	g.failures.Add(1)
}

func (g *GlobalCounters) Rejection() {
	g.requests.Add(1)
	g.rejections.Add(1)
}

func (g *GlobalCounters) Snapshot() GlobalMetrics {
	return GlobalMetrics{
		TotalRequests:     g.requests.Load(),
		TotalFailures:     g.failures.Load(),
		TotalTimeouts:     g.timeouts.Load(),
		TotalCircuitOpens: g.circuitOpens.Load(),
		TotalRecoveries:   g.recoveries.Load(),
		TotalFallbacks:    g.fallbacks.Load(),
		TotalRejections:   g.rejections.Load(),
	}
}

// Load overwrites every counter with the values in m.
func (g *GlobalCounters) Load(m GlobalMetrics) {
	g.requests.Store(m.TotalRequests)
	g.failures.Store(m.TotalFailures)
	g.timeouts.Store(m.TotalTimeouts)
	g.circuitOpens.Store(m.TotalCircuitOpens)
	g.recoveries.Store(m.TotalRecoveries)
	g.fallbacks.Store(m.TotalFallbacks)
	g.rejections.Store(m.TotalRejections)
}
