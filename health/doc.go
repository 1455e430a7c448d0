// Package health reports whether the gateway can verify tokens.
//
// A Checker reports one component's Status. The JWKS checker is unhealthy
// until a key set has been loaded and degraded while a previous key set is
// served after failed refreshes; the circuit checker mirrors the state of
// the key set fetch circuit breaker. Aggregator runs checkers with a
// deadline and the HTTP handlers expose the results:
//
//	agg := health.NewAggregator()
//	agg.Register("jwks", health.NewJWKSChecker(provider))
//	agg.Register("jwks_circuit", health.NewCircuitChecker("jwks_circuit", breaker))
//	health.RegisterHandlers(router, agg)
package health
