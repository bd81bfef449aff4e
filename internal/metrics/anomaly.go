package metrics

import (
	"fmt"
	"math"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/resilience/internal/events"
)

const (
	AnomalyGlobalFailureRate  = "high_global_failure_rate"
	AnomalyCircuitFailureRate = "high_circuit_failure_rate"
	AnomalyLowAvailability    = "low_availability"
)

// Thresholds control anomaly detection and failure prediction. Failure
// rates and availability are fractions in [0, 1]. The prediction ratios are
// fractions of the circuit's own trip thresholds.
type Thresholds struct {
	GlobalFailureRate   float64
	CircuitFailureRate  float64
	MinAvailability     float64
	PredictFailureRatio float64
	PredictFailureRate  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		GlobalFailureRate:   0.30,
		CircuitFailureRate:  0.50,
		MinAvailability:     0.80,
		PredictFailureRatio: 0.70,
		PredictFailureRate:  0.80,
	}
}

// DetectAnomalies flags a report whose failure rates or availability cross
// the thresholds. Rates must strictly exceed their threshold.
func DetectAnomalies(r events.Report, t Thresholds) []events.Anomaly {
	var anomalies []events.Anomaly

	if r.GlobalFailureRate > t.GlobalFailureRate {
		anomalies = append(anomalies, events.Anomaly{
			Type:      AnomalyGlobalFailureRate,
			Severity:  events.SeverityHigh,
			Value:     r.GlobalFailureRate,
			Threshold: t.GlobalFailureRate,
			Message:   fmt.Sprintf("global failure rate %.2f above %.2f", r.GlobalFailureRate, t.GlobalFailureRate),
		})
	}

	for _, c := range r.Circuits {
		if c.FailureRate > t.CircuitFailureRate {
			anomalies = append(anomalies, events.Anomaly{
				Type:      AnomalyCircuitFailureRate,
				Severity:  events.SeverityMedium,
				Service:   c.Name,
				Value:     c.FailureRate,
				Threshold: t.CircuitFailureRate,
				Message:   fmt.Sprintf("%s failure rate %.2f above %.2f", c.Name, c.FailureRate, t.CircuitFailureRate),
			})
		}
		if c.Availability < t.MinAvailability {
			anomalies = append(anomalies, events.Anomaly{
				Type:      AnomalyLowAvailability,
				Severity:  events.SeverityHigh,
				Service:   c.Name,
				Value:     c.Availability,
				Threshold: t.MinAvailability,
				Message:   fmt.Sprintf("%s availability %.2f below %.2f", c.Name, c.Availability, t.MinAvailability),
			})
		}
	}

	return anomalies
}

// Predict estimates which closed circuits are about to open: those whose
// window already holds most of the failures needed to trip, or whose recent
// failure rate is close to the rate threshold over enough requests.
func Predict(r events.Report, t Thresholds) []events.FailurePredicted {
	var predictions []events.FailurePredicted

	for _, c := range r.Circuits {
		if c.State != circuitbreaker.StateClosed {
			continue
		}

		var (
			probability float64
			reason      string
		)

		if c.Settings.FailureThreshold > 0 {
			ratio := float64(c.WindowFailures) / float64(c.Settings.FailureThreshold)
			if ratio >= t.PredictFailureRatio {
				probability = ratio
				reason = fmt.Sprintf("%d of %d failures in window", c.WindowFailures, c.Settings.FailureThreshold)
			}
		}

		enough := c.RecentRequests > 0 && c.RecentRequests*2 >= c.Settings.WindowSize
		if enough && c.Settings.FailureRateThreshold > 0 {
			ratio := c.RecentFailureRate / c.Settings.FailureRateThreshold
			if ratio >= t.PredictFailureRate && ratio > probability {
				probability = ratio
				reason = fmt.Sprintf("recent failure rate %.2f approaching %.2f over %d requests",
					c.RecentFailureRate, c.Settings.FailureRateThreshold, c.RecentRequests)
			}
		}

		if reason == "" {
			continue
		}

		predictions = append(predictions, events.FailurePredicted{
			Service:     c.Name,
			Probability: math.Min(probability, 1),
			Reason:      reason,
			Timestamp:   r.Timestamp,
		})
	}

	return predictions
}
