package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
)

const namespace = "resilience"

// Exporter mirrors circuit state into Prometheus. It is fed by subscribing
// it to the event bus; request counters come from the latest sample.
type Exporter struct {
	state        *prometheus.GaugeVec
	failureRate  *prometheus.GaugeVec
	availability *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
	predictions  *prometheus.CounterVec
	requests     *prometheus.Desc

	mutex    sync.RWMutex
	counters map[string]circuitbreaker.Counters
}

// NewExporter registers the exporter's collectors on reg.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Current circuit state: 0=closed, 1=open, 2=half-open.",
		}, []string{"service"}),
		failureRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_failure_rate",
			Help:      "Lifetime failures divided by requests.",
		}, []string{"service"}),
		availability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_availability",
			Help:      "Fraction of time the circuit has spent closed.",
		}, []string{"service"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Count of circuit state transitions.",
		}, []string{"service", "from", "to"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Count of detected anomalies.",
		}, []string{"type", "severity"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failure_predictions_total",
			Help:      "Count of failure predictions per service.",
		}, []string{"service"}),
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Requests seen by the circuit, by outcome.",
			[]string{"service", "outcome"}, nil,
		),
		counters: make(map[string]circuitbreaker.Counters),
	}

	if err := reg.Register(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	e.state.Describe(ch)
	e.failureRate.Describe(ch)
	e.availability.Describe(ch)
	e.transitions.Describe(ch)
	e.anomalies.Describe(ch)
	e.predictions.Describe(ch)
	ch <- e.requests
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.state.Collect(ch)
	e.failureRate.Collect(ch)
	e.availability.Collect(ch)
	e.transitions.Collect(ch)
	e.anomalies.Collect(ch)
	e.predictions.Collect(ch)

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	for service, c := range e.counters {
		for outcome, value := range map[string]int64{
			"total":     c.Requests,
			"success":   c.Successes,
			"failure":   c.Failures,
			"timeout":   c.Timeouts,
			"fallback":  c.Fallbacks,
			"rejection": c.Rejections,
		} {
			ch <- prometheus.MustNewConstMetric(e.requests, prometheus.CounterValue, float64(value), service, outcome)
		}
	}
}

func (e *Exporter) OnCircuitCreated(ev events.CircuitCreated) {
	e.state.WithLabelValues(ev.Service).Set(float64(circuitbreaker.StateClosed))
}

func (e *Exporter) OnStateChanged(ev events.StateChanged) {
	t := ev.Transition
	e.state.WithLabelValues(ev.Service).Set(float64(t.To))
	e.transitions.WithLabelValues(ev.Service, t.From.String(), t.To.String()).Inc()
}

// OnMetrics replaces the per-circuit series with the sampled ones, so
// removed circuits disappear.
func (e *Exporter) OnMetrics(ev events.MetricsCollected) {
	e.state.Reset()
	e.failureRate.Reset()
	e.availability.Reset()

	counters := make(map[string]circuitbreaker.Counters, len(ev.Report.Circuits))
	for _, c := range ev.Report.Circuits {
		e.state.WithLabelValues(c.Name).Set(float64(c.State))
		e.failureRate.WithLabelValues(c.Name).Set(c.FailureRate)
		e.availability.WithLabelValues(c.Name).Set(c.Availability)
		counters[c.Name] = c.Metrics
	}

	e.mutex.Lock()
	e.counters = counters
	e.mutex.Unlock()
}

func (e *Exporter) OnAnomalies(ev events.AnomaliesDetected) {
	for _, a := range ev.Anomalies {
		e.anomalies.WithLabelValues(a.Type, string(a.Severity)).Inc()
	}
}

func (e *Exporter) OnFailurePrediction(ev events.FailurePredicted) {
	e.predictions.WithLabelValues(ev.Service).Inc()
}

// RegisterDroppedEvents exposes the number of events discarded because the
// event bus buffer was full.
func RegisterDroppedEvents(reg prometheus.Registerer, dropped func() int64) error {
	return reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events discarded because the event bus buffer was full.",
	}, func() float64 {
		return float64(dropped())
	}))
}
