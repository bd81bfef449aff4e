package circuitbreaker

import (
	"math"
	"time"
)

// Backoff returns how long a circuit stays open after its priorOpens-th
// opening: openDuration * multiplier^priorOpens, capped at maxBackoff.
func Backoff(openDuration time.Duration, multiplier float64, maxBackoff time.Duration, priorOpens int) time.Duration {
	if openDuration <= 0 {
		return 0
	}
	if priorOpens < 0 {
		priorOpens = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}

	limit := maxBackoff
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}

	scaled := float64(openDuration) * math.Pow(multiplier, float64(priorOpens))
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) || scaled >= float64(limit) {
		return limit
	}

	return time.Duration(scaled)
}
