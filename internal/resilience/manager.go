package resilience

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
)

// Manager owns every circuit of the process. Construct one at startup and
// pass it to the call sites that need protection.
type Manager struct {
	registry  *circuitbreaker.Registry
	global    circuitbreaker.GlobalCounters
	publisher events.Publisher
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
}

type Option func(*config)

type config struct {
	publisher events.Publisher
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
	overrides map[string]circuitbreaker.Settings
}

func WithPublisher(p events.Publisher) Option {
	return func(c *config) {
		c.publisher = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock replaces time.Now for the manager and every circuit it creates.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithRequestIDs replaces the UUID generator used for request ids.
func WithRequestIDs(newID func() string) Option {
	return func(c *config) {
		c.newID = newID
	}
}

// WithServiceSettings registers per-service overrides. They are layered over
// the defaults when the service's circuit is created.
func WithServiceSettings(overrides map[string]circuitbreaker.Settings) Option {
	return func(c *config) {
		c.overrides = overrides
	}
}

func NewManager(defaults circuitbreaker.Settings, opts ...Option) *Manager {
	cfg := config{
		publisher: events.Nop{},
		logger:    slog.Default(),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Manager{
		publisher: cfg.publisher,
		logger:    cfg.logger,
		clock:     cfg.clock,
		newID:     cfg.newID,
	}

	m.registry = circuitbreaker.NewRegistry(defaults, cfg.overrides,
		circuitbreaker.WithClock(cfg.clock),
		circuitbreaker.WithTransitionListener(m.onTransition),
	)

	return m
}

// Preload eagerly creates the circuits of well-known services.
func (m *Manager) Preload(services ...string) {
	for _, name := range services {
		if name == "" {
			continue
		}
		m.circuit(name)
	}
}

func (m *Manager) circuit(service string) *circuitbreaker.CircuitBreaker {
	cb, created := m.registry.GetBreaker(service)
	if created {
		m.logger.Debug("Circuit created", slog.String("service", service))
		m.publisher.Publish(events.CircuitCreated{
			Service:   service,
			Settings:  cb.Settings(),
			Timestamp: m.clock(),
		})
	}
	return cb
}

func (m *Manager) onTransition(service string, t circuitbreaker.Transition) {
	switch t.To {
	case circuitbreaker.StateOpen:
		m.global.CircuitOpen()
		m.logger.Warn("Circuit opened",
			slog.String("service", service),
			slog.String("from", t.From.String()),
			slog.String("reason", t.Reason))
	case circuitbreaker.StateClosed:
		if t.From != circuitbreaker.StateClosed {
			m.global.Recovery()
		}
		m.logger.Info("Circuit closed",
			slog.String("service", service),
			slog.String("reason", t.Reason))
	case circuitbreaker.StateHalfOpen:
		m.logger.Info("Circuit half-open",
			slog.String("service", service),
			slog.String("reason", t.Reason))
	}

	m.publisher.Publish(events.StateChanged{Service: service, Transition: t})
}

// GlobalMetrics returns the process-wide counters.
func (m *Manager) GlobalMetrics() circuitbreaker.GlobalMetrics {
	return m.global.Snapshot()
}
