// Package resilience protects calls to named downstream services.
//
// A Manager keeps one circuit per service name and routes every call through
// it. Calls to a service whose circuit is open are rejected without running
// the operation, and each call is bounded by the circuit's timeout:
//
//	m := resilience.NewManager(circuitbreaker.DefaultSettings(),
//		resilience.WithLogger(logger),
//		resilience.WithPublisher(bus),
//	)
//
//	user, err := resilience.Do(ctx, m, "user-service",
//		func(ctx context.Context) (*User, error) {
//			return client.GetUser(ctx, id)
//		},
//		func(ctx context.Context, cause error) (*User, error) {
//			return cache.User(id), nil
//		},
//	)
//
// Errors returned by Execute carry a Kind (see KindOf) and unwrap to the
// operation's own error, so errors.Is and errors.As keep working.
//
// The manager's counters and circuit states can be written to a Store with
// Save and loaded back with Restore.
package resilience
