package circuitbreaker

import "time"

// Settings are the resolved thresholds of a single circuit. They are fixed
// once the circuit has been created.
type Settings struct {
	FailureThreshold     int           `json:"failure_threshold"`
	FailureRateThreshold float64       `json:"failure_rate_threshold"`
	Timeout              time.Duration `json:"timeout"`
	OpenDuration         time.Duration `json:"open_duration"`
	HalfOpenRequests     int           `json:"half_open_requests"`
	WindowSize           int           `json:"window_size"`
	WindowDuration       time.Duration `json:"window_duration"`
	BackoffMultiplier    float64       `json:"backoff_multiplier"`
	MaxBackoff           time.Duration `json:"max_backoff"`
}

// DefaultSettings returns the process-wide defaults used when neither the
// configuration nor a service override provides a value.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold:     5,
		FailureRateThreshold: 0.5,
		Timeout:              30 * time.Second,
		OpenDuration:         60 * time.Second,
		HalfOpenRequests:     3,
		WindowSize:           10,
		WindowDuration:       60 * time.Second,
		BackoffMultiplier:    2,
		MaxBackoff:           5 * time.Minute,
	}
}

// Merge layers overrides on top of s. Zero-valued fields in overrides
// inherit the value from s.
func (s Settings) Merge(overrides Settings) Settings {
	merged := s

	if overrides.FailureThreshold > 0 {
		merged.FailureThreshold = overrides.FailureThreshold
	}
	if overrides.FailureRateThreshold > 0 {
		merged.FailureRateThreshold = overrides.FailureRateThreshold
	}
	if overrides.Timeout > 0 {
		merged.Timeout = overrides.Timeout
	}
	if overrides.OpenDuration > 0 {
		merged.OpenDuration = overrides.OpenDuration
	}
	if overrides.HalfOpenRequests > 0 {
		merged.HalfOpenRequests = overrides.HalfOpenRequests
	}
	if overrides.WindowSize > 0 {
		merged.WindowSize = overrides.WindowSize
	}
	if overrides.WindowDuration > 0 {
		merged.WindowDuration = overrides.WindowDuration
	}
	if overrides.BackoffMultiplier > 0 {
		merged.BackoffMultiplier = overrides.BackoffMultiplier
	}
	if overrides.MaxBackoff > 0 {
		merged.MaxBackoff = overrides.MaxBackoff
	}

	return merged
}
