// Package metrics samples the resilience manager on a fixed interval.
//
// Each sample is a report of the global counters and every circuit's status.
// The sampler publishes it as a metricsCollected event, checks it for
// anomalies (high failure rates, low availability) and predicts which closed
// circuits are about to open:
//
//	sampler := metrics.NewSampler(manager, bus, time.Minute, logger)
//	sampler.Start(ctx)
//
// An Exporter subscribed to the same bus keeps Prometheus series in step
// with the events:
//
//	exporter, err := metrics.NewExporter(prometheus.DefaultRegisterer)
//	bus.Subscribe(exporter)
//
// Detection only reports. Nothing in this package changes circuit state.
package metrics
