// Package events carries the notifications the resilience manager and the
// metrics sampler emit: circuitCreated, stateChanged, metricsCollected,
// anomaliesDetected and failurePrediction.
//
// Publishers never block. A Bus buffers events in a channel and a dedicated
// goroutine hands them to every subscribed Observer:
//
//	bus := events.NewBus(1000, logger)
//	bus.Subscribe(events.Funcs{
//		StateChanged: func(e events.StateChanged) {
//			logger.Warn("circuit changed", slog.String("service", e.Service))
//		},
//	})
//	bus.Start(ctx)
//
// On context cancellation the bus drains buffered events before it stops.
package events
