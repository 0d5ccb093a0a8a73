// Package health aggregates liveness probes for a running bridge: one per
// transport connection and one for the HTTP listener.
//
// Checks run concurrently under the caller's context:
//
//	registry := health.NewRegistry()
//	registry.Register(health.NewTransportChecker("publisher", transport))
//	report := registry.Check(ctx)
//	if !report.Healthy() {
//		// inspect report.Checks
//	}
package health
