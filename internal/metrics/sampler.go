package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
)

const DefaultInterval = time.Minute

// Source is what the sampler reads each interval. *resilience.Manager
// satisfies it.
type Source interface {
	AllMetrics() []circuitbreaker.Status
	GlobalMetrics() circuitbreaker.GlobalMetrics
}

type Option func(*Sampler)

func WithThresholds(t Thresholds) Option {
	return func(s *Sampler) {
		s.thresholds = t
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Sampler) {
		s.clock = clock
	}
}

// Sampler builds a report of every circuit on a fixed interval and
// publishes it together with any anomalies and failure predictions.
type Sampler struct {
	source     Source
	publisher  events.Publisher
	interval   time.Duration
	logger     *slog.Logger
	thresholds Thresholds
	clock      func() time.Time

	mutex   sync.RWMutex
	latest  events.Report
	sampled bool
}

func NewSampler(source Source, publisher events.Publisher, interval time.Duration, logger *slog.Logger, opts ...Option) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	s := &Sampler{
		source:     source,
		publisher:  publisher,
		interval:   interval,
		logger:     logger,
		thresholds: DefaultThresholds(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sampler) run(ctx context.Context) {
	s.logger.Info("Metrics sampler started", slog.Duration("interval", s.interval))
	defer s.logger.Info("Metrics sampler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Collect()
		case <-ctx.Done():
			return
		}
	}
}

// Collect takes a sample immediately and publishes it.
func (s *Sampler) Collect() events.Report {
	report := s.sample()

	s.mutex.Lock()
	s.latest = report
	s.sampled = true
	s.mutex.Unlock()

	s.publisher.Publish(events.MetricsCollected{Report: report})

	if anomalies := DetectAnomalies(report, s.thresholds); len(anomalies) > 0 {
		for _, a := range anomalies {
			s.logger.Warn("Anomaly detected",
				slog.String("type", a.Type),
				slog.String("severity", string(a.Severity)),
				slog.String("service", a.Service),
				slog.Float64("value", a.Value),
				slog.Float64("threshold", a.Threshold))
		}
		s.publisher.Publish(events.AnomaliesDetected{Timestamp: report.Timestamp, Anomalies: anomalies})
	}

	for _, p := range Predict(report, s.thresholds) {
		s.logger.Info("Failure predicted",
			slog.String("service", p.Service),
			slog.Float64("probability", p.Probability),
			slog.String("reason", p.Reason))
		s.publisher.Publish(p)
	}

	return report
}

// sample builds a report without recording or publishing it.
func (s *Sampler) sample() events.Report {
	global := s.source.GlobalMetrics()
	return events.Report{
		Timestamp:         s.clock(),
		Global:            global,
		GlobalFailureRate: global.FailureRate(),
		Circuits:          s.source.AllMetrics(),
	}
}

// Latest returns the most recent report and whether one has been taken.
func (s *Sampler) Latest() (events.Report, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.latest, s.sampled
}
