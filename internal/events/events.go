package events

import (
	"time"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
)

type Type string

const (
	TypeCircuitCreated    Type = "circuitCreated"
	TypeStateChanged      Type = "stateChanged"
	TypeMetricsCollected  Type = "metricsCollected"
	TypeAnomaliesDetected Type = "anomaliesDetected"
	TypeFailurePrediction Type = "failurePrediction"
)

// Event is implemented by the payload types of this package only.
type Event interface {
	Type() Type
	dispatch(Observer)
}

// Observer receives every event published on a Bus.
type Observer interface {
	OnCircuitCreated(CircuitCreated)
	OnStateChanged(StateChanged)
	OnMetrics(MetricsCollected)
	OnAnomalies(AnomaliesDetected)
	OnFailurePrediction(FailurePredicted)
}

type CircuitCreated struct {
	Service   string                  `json:"service"`
	Settings  circuitbreaker.Settings `json:"settings"`
	Timestamp time.Time               `json:"timestamp"`
}

type StateChanged struct {
	Service    string                    `json:"service"`
	Transition circuitbreaker.Transition `json:"transition"`
}

type MetricsCollected struct {
	Report Report `json:"report"`
}

type AnomaliesDetected struct {
	Timestamp time.Time `json:"timestamp"`
	Anomalies []Anomaly `json:"anomalies"`
}

type FailurePredicted struct {
	Service     string    `json:"service"`
	Probability float64   `json:"probability"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// Report is one sample of every circuit plus the global counters.
type Report struct {
	Timestamp         time.Time                    `json:"timestamp"`
	Global            circuitbreaker.GlobalMetrics `json:"global"`
	GlobalFailureRate float64                      `json:"global_failure_rate"`
	Circuits          []circuitbreaker.Status      `json:"circuits"`
}

type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Anomaly struct {
	Type      string   `json:"type"`
	Severity  Severity `json:"severity"`
	Service   string   `json:"service,omitempty"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Message   string   `json:"message"`
}

func (CircuitCreated) Type() Type    { return TypeCircuitCreated }
func (StateChanged) Type() Type      { return TypeStateChanged }
func (MetricsCollected) Type() Type  { return TypeMetricsCollected }
func (AnomaliesDetected) Type() Type { return TypeAnomaliesDetected }
func (FailurePredicted) Type() Type  { return TypeFailurePrediction }

func (e CircuitCreated) dispatch(o Observer)    { o.OnCircuitCreated(e) }
func (e StateChanged) dispatch(o Observer)      { o.OnStateChanged(e) }
func (e MetricsCollected) dispatch(o Observer)  { o.OnMetrics(e) }
func (e AnomaliesDetected) dispatch(o Observer) { o.OnAnomalies(e) }
func (e FailurePredicted) dispatch(o Observer)  { o.OnFailurePrediction(e) }

// Funcs adapts plain functions to Observer. Nil fields ignore their event.
type Funcs struct {
	CircuitCreated    func(CircuitCreated)
	StateChanged      func(StateChanged)
	Metrics           func(MetricsCollected)
	Anomalies         func(AnomaliesDetected)
	FailurePrediction func(FailurePredicted)
}

func (f Funcs) OnCircuitCreated(e CircuitCreated) {
	if f.CircuitCreated != nil {
		f.CircuitCreated(e)
	}
}

func (f Funcs) OnStateChanged(e StateChanged) {
	if f.StateChanged != nil {
		f.StateChanged(e)
	}
}

func (f Funcs) OnMetrics(e MetricsCollected) {
	if f.Metrics != nil {
		f.Metrics(e)
	}
}

func (f Funcs) OnAnomalies(e AnomaliesDetected) {
	if f.Anomalies != nil {
		f.Anomalies(e)
	}
}

func (f Funcs) OnFailurePrediction(e FailurePredicted) {
	if f.FailurePrediction != nil {
		f.FailurePrediction(e)
	}
}

// Deliver hands e to o synchronously.
func Deliver(o Observer, e Event) {
	e.dispatch(o)
}
