// Package circuitbreaker implements the per-service circuit state machine.
//
// A circuit has three states:
//
//   - CLOSED: normal operation, requests pass through
//   - OPEN: service failing, requests rejected until the retry time
//   - HALF_OPEN: a bounded number of trial requests decide between
//     closing again and reopening
//
// Failures are tracked in a sliding time window. A circuit opens when the
// window holds FailureThreshold failures or when the failure rate of recent
// requests reaches FailureRateThreshold. Each reopening waits longer, see
// Backoff.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.DefaultSettings(), nil)
//	cb, _ := registry.GetBreaker("payments")
//	if cb.Begin(requestID) {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure(requestID, err, false)
//	    } else {
//	        cb.RecordSuccess(requestID)
//	    }
//	}
package circuitbreaker
