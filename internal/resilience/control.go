package resilience

import (
	"fmt"
	"log/slog"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
)

func (m *Manager) lookup(name string) (*circuitbreaker.CircuitBreaker, error) {
	cb, ok := m.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCircuitNotFound, name)
	}
	return cb, nil
}

// OpenCircuit forces the circuit open. The usual backoff applies to its
// retry time.
func (m *Manager) OpenCircuit(name string) error {
	cb, err := m.lookup(name)
	if err != nil {
		return err
	}
	cb.ForceOpen("manually opened")
	return nil
}

// CloseCircuit forces the circuit closed and clears its failure window.
func (m *Manager) CloseCircuit(name string) error {
	cb, err := m.lookup(name)
	if err != nil {
		return err
	}
	cb.ForceClose("manually closed")
	return nil
}

// ResetCircuit returns the circuit to a fresh CLOSED state with zeroed
// metrics. Calling it repeatedly yields the same state.
func (m *Manager) ResetCircuit(name string) error {
	cb, err := m.lookup(name)
	if err != nil {
		return err
	}

	previous := cb.Reset()
	m.logger.Info("Circuit reset", slog.String("service", name), slog.String("previous", previous.String()))

	if previous != circuitbreaker.StateClosed {
		m.publisher.Publish(events.StateChanged{
			Service: name,
			Transition: circuitbreaker.Transition{
				From:      previous,
				To:        circuitbreaker.StateClosed,
				Timestamp: m.clock(),
				Reason:    "manual reset",
			},
		})
	}
	return nil
}

// RemoveCircuit forgets the circuit. The next Execute for name starts a new one.
func (m *Manager) RemoveCircuit(name string) error {
	if !m.registry.Remove(name) {
		return fmt.Errorf("%w: %s", ErrCircuitNotFound, name)
	}
	m.logger.Info("Circuit removed", slog.String("service", name))
	return nil
}

func (m *Manager) CircuitStatus(name string) (circuitbreaker.Status, error) {
	cb, err := m.lookup(name)
	if err != nil {
		return circuitbreaker.Status{}, err
	}
	return cb.Status(), nil
}

// AllMetrics returns the status of every circuit ordered by name.
func (m *Manager) AllMetrics() []circuitbreaker.Status {
	breakers := m.registry.Breakers()
	statuses := make([]circuitbreaker.Status, 0, len(breakers))
	for _, cb := range breakers {
		statuses = append(statuses, cb.Status())
	}
	return statuses
}

// Services returns the names of every registered circuit.
func (m *Manager) Services() []string {
	breakers := m.registry.Breakers()
	names := make([]string, 0, len(breakers))
	for _, cb := range breakers {
		names = append(names, cb.Name())
	}
	return names
}
