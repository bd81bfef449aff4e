package metrics_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
	"github.com/angeloszaimis/resilience/internal/metrics"
)

var _ = Describe("Exporter", func() {
	var (
		reg      *prometheus.Registry
		exporter *metrics.Exporter
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()

		var err error
		exporter, err = metrics.NewExporter(reg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse to register twice", func() {
		_, err := metrics.NewExporter(reg)
		Expect(err).To(HaveOccurred())
	})

	It("should track state transitions", func() {
		exporter.OnCircuitCreated(events.CircuitCreated{Service: "db"})
		exporter.OnStateChanged(events.StateChanged{
			Service: "db",
			Transition: circuitbreaker.Transition{
				From: circuitbreaker.StateClosed,
				To:   circuitbreaker.StateOpen,
			},
		})

		expected := `
# HELP resilience_circuit_state Current circuit state: 0=closed, 1=open, 2=half-open.
# TYPE resilience_circuit_state gauge
resilience_circuit_state{service="db"} 1
# HELP resilience_state_transitions_total Count of circuit state transitions.
# TYPE resilience_state_transitions_total counter
resilience_state_transitions_total{from="CLOSED",service="db",to="OPEN"} 1
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"resilience_circuit_state", "resilience_state_transitions_total")).To(Succeed())
	})

	It("should mirror sampled circuits", func() {
		db := closedCircuit("db")
		db.FailureRate = 0.25
		db.Availability = 0.9
		db.Metrics = circuitbreaker.Counters{Requests: 4, Successes: 3, Failures: 1}

		exporter.OnMetrics(events.MetricsCollected{Report: events.Report{
			Circuits: []circuitbreaker.Status{db},
		}})

		expected := `
# HELP resilience_circuit_failure_rate Lifetime failures divided by requests.
# TYPE resilience_circuit_failure_rate gauge
resilience_circuit_failure_rate{service="db"} 0.25
# HELP resilience_circuit_availability Fraction of time the circuit has spent closed.
# TYPE resilience_circuit_availability gauge
resilience_circuit_availability{service="db"} 0.9
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"resilience_circuit_failure_rate", "resilience_circuit_availability")).To(Succeed())

		Expect(testutil.CollectAndCount(exporter, "resilience_requests_total")).To(Equal(6))
	})

	It("should drop circuits missing from the latest sample", func() {
		exporter.OnMetrics(events.MetricsCollected{Report: events.Report{
			Circuits: []circuitbreaker.Status{closedCircuit("db"), closedCircuit("cache")},
		}})
		Expect(testutil.CollectAndCount(exporter, "resilience_circuit_state")).To(Equal(2))

		exporter.OnMetrics(events.MetricsCollected{Report: events.Report{
			Circuits: []circuitbreaker.Status{closedCircuit("db")},
		}})
		Expect(testutil.CollectAndCount(exporter, "resilience_circuit_state")).To(Equal(1))
		Expect(testutil.CollectAndCount(exporter, "resilience_requests_total")).To(Equal(6))
	})

	It("should count anomalies and predictions", func() {
		exporter.OnAnomalies(events.AnomaliesDetected{Anomalies: []events.Anomaly{
			{Type: metrics.AnomalyLowAvailability, Severity: events.SeverityHigh},
			{Type: metrics.AnomalyLowAvailability, Severity: events.SeverityHigh},
		}})
		exporter.OnFailurePrediction(events.FailurePredicted{Service: "db"})

		expected := `
# HELP resilience_anomalies_total Count of detected anomalies.
# TYPE resilience_anomalies_total counter
resilience_anomalies_total{severity="high",type="low_availability"} 2
# HELP resilience_failure_predictions_total Count of failure predictions per service.
# TYPE resilience_failure_predictions_total counter
resilience_failure_predictions_total{service="db"} 1
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"resilience_anomalies_total", "resilience_failure_predictions_total")).To(Succeed())
	})

	It("should be usable as a bus observer", func() {
		var observer events.Observer = exporter
		events.Deliver(observer, events.CircuitCreated{Service: "db"})
		Expect(testutil.CollectAndCount(exporter, "resilience_circuit_state")).To(Equal(1))
	})

	Describe("RegisterDroppedEvents", func() {
		It("should report the bus drop count", func() {
			var dropped int64 = 3
			Expect(metrics.RegisterDroppedEvents(reg, func() int64 { return dropped })).To(Succeed())

			expected := `
# HELP resilience_events_dropped_total Events discarded because the event bus buffer was full.
# TYPE resilience_events_dropped_total counter
resilience_events_dropped_total 3
`
			Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected), "resilience_events_dropped_total")).To(Succeed())

			dropped = 5
			Expect(testutil.GatherAndCompare(reg, strings.NewReader(strings.Replace(expected, " 3\n", " 5\n", 1)),
				"resilience_events_dropped_total")).To(Succeed())
		})
	})
})
