// Package resilience guards calls to remote endpoints.
//
// # Patterns
//
//   - Circuit Breaker: stops calling an endpoint after repeated failures and
//     probes it again after a cool-down.
//
//   - Retry: retries transient failures with backoff. Errors wrapped with
//     Permanent are never retried.
//
//   - Rate Limiter: a token bucket used to bound optional work such as forced
//     key set refreshes.
//
//   - Timeout: bounds a single attempt.
//
// # Usage
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        MaxFailures:  5,
//	        ResetTimeout: 30 * time.Second,
//	    })),
//	    resilience.WithTimeout(10*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return fetchKeySet(ctx)
//	})
package resilience
