package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Admitting a bounded number of trial requests
)

const (
	maxTransitions       = 1000
	maxPersistedFailures = 100
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CLOSED":
		*s = StateClosed
	case "OPEN":
		*s = StateOpen
	case "HALF_OPEN":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("circuitbreaker: unknown state %q", text)
	}
	return nil
}

// Transition is one entry of a circuit's state change log.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Counters accumulate for the lifetime of a circuit and are only zeroed by Reset.
type Counters struct {
	Requests   int64 `json:"requests"`
	Successes  int64 `json:"successes"`
	Failures   int64 `json:"failures"`
	Timeouts   int64 `json:"timeouts"`
	Fallbacks  int64 `json:"fallbacks"`
	Rejections int64 `json:"rejections"`
}

// TransitionListener is called after a transition has been applied, outside
// of the circuit's lock.
type TransitionListener func(name string, t Transition)

type Option func(*CircuitBreaker)

// WithClock replaces time.Now as the circuit's time source.
func WithClock(clock func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.clock = clock
	}
}

func WithTransitionListener(listener TransitionListener) Option {
	return func(cb *CircuitBreaker) {
		cb.listener = listener
	}
}

type activeRequest struct {
	startTime time.Time
	epoch     uint64
}

// CircuitBreaker guards a single named service. Every field below mutex is
// only touched while holding it.
type CircuitBreaker struct {
	name     string
	settings Settings
	clock    func() time.Time
	listener TransitionListener

	mutex             sync.Mutex
	state             State
	epoch             uint64
	failures          failureWindow
	history           *history
	active            map[string]activeRequest
	successCount      int
	halfOpenTests     int
	halfOpenSuccesses int
	openCount         int
	openedAt          time.Time
	nextRetryTime     time.Time
	closedAt          time.Time
	lastFailureTime   time.Time
	lastSuccessTime   time.Time
	counters          Counters
	transitions       []Transition
	firstChange       time.Time
	lastChange        time.Time
	closedFor         time.Duration
	pending           []Transition
}

func NewCircuitBreaker(name string, settings Settings, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:     name,
		settings: settings,
		clock:    time.Now,
		state:    StateClosed,
		history:  newHistory(historySize),
		active:   make(map[string]activeRequest),
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) Settings() Settings {
	return cb.settings
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Allow reports whether a request would currently be admitted. An open
// circuit whose retry time has passed moves to HALF_OPEN as a side effect.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	allowed := cb.canExecuteLocked(cb.clock())
	fired := cb.takePendingLocked()
	cb.mutex.Unlock()

	cb.notify(fired)
	return allowed
}

// Begin runs the gate check and, when it passes, admits requestID as an
// in-flight request. Rejected calls are counted as requests and rejections.
func (cb *CircuitBreaker) Begin(requestID string) bool {
	cb.mutex.Lock()
	now := cb.clock()
	allowed := cb.canExecuteLocked(now)

	cb.counters.Requests++
	if allowed {
		if cb.state == StateHalfOpen {
			cb.halfOpenTests++
		}
		cb.active[requestID] = activeRequest{startTime: now, epoch: cb.epoch}
	} else {
		cb.counters.Rejections++
	}

	fired := cb.takePendingLocked()
	cb.mutex.Unlock()

	cb.notify(fired)
	return allowed
}

// RecordSuccess completes requestID as successful. It returns false when the
// request is unknown or was already completed.
func (cb *CircuitBreaker) RecordSuccess(requestID string) bool {
	cb.mutex.Lock()
	recorded := cb.recordSuccessLocked(requestID)
	fired := cb.takePendingLocked()
	cb.mutex.Unlock()

	cb.notify(fired)
	return recorded
}

// RecordFailure completes requestID as failed. timeout marks failures caused
// by the request deadline.
func (cb *CircuitBreaker) RecordFailure(requestID string, err error, timeout bool) bool {
	cb.mutex.Lock()
	recorded := cb.recordFailureLocked(requestID, err, timeout)
	fired := cb.takePendingLocked()
	cb.mutex.Unlock()

	cb.notify(fired)
	return recorded
}

func (cb *CircuitBreaker) RecordFallback() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.counters.Fallbacks++
}

// ForceOpen opens the circuit regardless of its counters. It is a no-op when
// the circuit is already open.
func (cb *CircuitBreaker) ForceOpen(reason string) {
	cb.mutex.Lock()
	if cb.state != StateOpen {
		cb.transitionLocked(StateOpen, cb.clock(), reason)
	}
	fired := cb.takePendingLocked()
	cb.mutex.Unlock()

	cb.notify(fired)
}

// ForceClose closes the circuit and clears its failure window.
func (cb *CircuitBreaker) ForceClose(reason string) {
	cb.mutex.Lock()
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed, cb.clock(), reason)
	} else {
		cb.failures.clear()
	}
	fired := cb.takePendingLocked()
	cb.mutex.Unlock()

	cb.notify(fired)
}

// Reset discards all runtime state, leaving a closed circuit with zeroed
// metrics. In-flight requests admitted before the reset are no longer
// recorded. It returns the state the circuit was in.
func (cb *CircuitBreaker) Reset() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	previous := cb.state
	cb.state = StateClosed
	cb.epoch++
	cb.failures.clear()
	cb.history.reset()
	cb.active = make(map[string]activeRequest)
	cb.successCount = 0
	cb.halfOpenTests = 0
	cb.halfOpenSuccesses = 0
	cb.openCount = 0
	cb.openedAt = time.Time{}
	cb.nextRetryTime = time.Time{}
	cb.closedAt = time.Time{}
	cb.lastFailureTime = time.Time{}
	cb.lastSuccessTime = time.Time{}
	cb.counters = Counters{}
	cb.transitions = nil
	cb.firstChange = time.Time{}
	cb.lastChange = time.Time{}
	cb.closedFor = 0
	cb.pending = nil

	return previous
}

func (cb *CircuitBreaker) canExecuteLocked(now time.Time) bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Before(cb.nextRetryTime) {
			return false
		}
		cb.transitionLocked(StateHalfOpen, now, "retry timeout elapsed")
		return cb.halfOpenTests < cb.settings.HalfOpenRequests
	case StateHalfOpen:
		return cb.halfOpenTests < cb.settings.HalfOpenRequests
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccessLocked(requestID string) bool {
	req, ok := cb.active[requestID]
	if !ok {
		return false
	}
	delete(cb.active, requestID)

	now := cb.clock()
	cb.history.add(RequestRecord{
		RequestID: requestID,
		StartTime: req.startTime,
		EndTime:   now,
		Duration:  now.Sub(req.startTime),
		Success:   true,
	})
	cb.counters.Successes++
	cb.successCount++
	cb.lastSuccessTime = now
	cb.failures.prune(now.Add(-cb.settings.WindowDuration))

	// Only trials admitted during the current half-open period count towards closing.
	if cb.state == StateHalfOpen && req.epoch == cb.epoch {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.settings.HalfOpenRequests {
			cb.transitionLocked(StateClosed, now,
				fmt.Sprintf("half-open trials succeeded (%d/%d)", cb.halfOpenSuccesses, cb.settings.HalfOpenRequests))
		}
	}

	return true
}

func (cb *CircuitBreaker) recordFailureLocked(requestID string, err error, timeout bool) bool {
	req, ok := cb.active[requestID]
	if !ok {
		return false
	}
	delete(cb.active, requestID)

	now := cb.clock()
	message := errorMessage(err)
	cb.history.add(RequestRecord{
		RequestID: requestID,
		StartTime: req.startTime,
		EndTime:   now,
		Duration:  now.Sub(req.startTime),
		Success:   false,
		Error:     message,
	})
	cb.counters.Failures++
	if timeout {
		cb.counters.Timeouts++
	}
	cb.failures.push(Failure{
		Timestamp: now,
		Message:   message,
		Type:      errorType(err),
		RequestID: requestID,
	})
	cb.lastFailureTime = now
	cb.failures.prune(now.Add(-cb.settings.WindowDuration))

	switch cb.state {
	case StateHalfOpen:
		// Requests admitted before this half-open period are not trials.
		if req.epoch == cb.epoch {
			cb.transitionLocked(StateOpen, now, "failure during half-open trial: "+message)
		}
	case StateClosed:
		if reason, trip := cb.shouldTripLocked(now); trip {
			cb.transitionLocked(StateOpen, now, reason)
		}
	}

	return true
}

func (cb *CircuitBreaker) shouldTripLocked(now time.Time) (string, bool) {
	if n := cb.failures.len(); n >= cb.settings.FailureThreshold {
		return fmt.Sprintf("failure threshold reached (%d/%d)", n, cb.settings.FailureThreshold), true
	}

	total, failed := cb.recentLocked(now)
	if total > 0 && total >= cb.settings.WindowSize {
		rate := float64(failed) / float64(total)
		if rate >= cb.settings.FailureRateThreshold {
			return fmt.Sprintf("failure rate %.2f >= %.2f over %d requests",
				rate, cb.settings.FailureRateThreshold, total), true
		}
	}

	return "", false
}

// recentLocked counts requests completed inside the window since the circuit
// last closed.
func (cb *CircuitBreaker) recentLocked(now time.Time) (total, failed int) {
	since := now.Add(-cb.settings.WindowDuration)
	if cb.closedAt.After(since) {
		since = cb.closedAt
	}
	return cb.history.recent(since)
}

func (cb *CircuitBreaker) transitionLocked(to State, now time.Time, reason string) {
	t := Transition{From: cb.state, To: to, Timestamp: now, Reason: reason}

	if cb.firstChange.IsZero() {
		cb.firstChange = now
	} else if cb.state == StateClosed {
		cb.closedFor += now.Sub(cb.lastChange)
	}
	cb.lastChange = now

	cb.state = to
	cb.epoch++
	cb.halfOpenTests = 0
	cb.halfOpenSuccesses = 0

	switch to {
	case StateOpen:
		backoff := Backoff(cb.settings.OpenDuration, cb.settings.BackoffMultiplier, cb.settings.MaxBackoff, cb.openCount)
		cb.openedAt = now
		cb.nextRetryTime = now.Add(backoff)
		cb.openCount++
	case StateClosed:
		cb.failures.clear()
		cb.successCount = 0
		cb.closedAt = now
	}

	cb.transitions = append(cb.transitions, t)
	if len(cb.transitions) > maxTransitions {
		cb.transitions = cb.transitions[len(cb.transitions)-maxTransitions:]
	}
	cb.pending = append(cb.pending, t)
}

func (cb *CircuitBreaker) takePendingLocked() []Transition {
	fired := cb.pending
	cb.pending = nil
	return fired
}

func (cb *CircuitBreaker) notify(fired []Transition) {
	if cb.listener == nil {
		return
	}
	for _, t := range fired {
		cb.listener(cb.name, t)
	}
}

func (cb *CircuitBreaker) availabilityLocked(now time.Time) float64 {
	if cb.firstChange.IsZero() {
		if cb.state == StateClosed {
			return 1
		}
		return 0
	}

	closed := cb.closedFor
	if cb.state == StateClosed {
		closed += now.Sub(cb.lastChange)
	}

	total := now.Sub(cb.firstChange)
	if total <= 0 {
		if cb.state == StateClosed {
			return 1
		}
		return 0
	}

	return float64(closed) / float64(total)
}

type kinded interface {
	ErrorKind() string
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func errorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return fmt.Sprintf("%T", err)
}
