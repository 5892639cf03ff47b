// Package resilience hardens a store.Client against transient failures.
//
// Client wraps any store.Client with a Retry policy (exponential backoff with
// optional jitter) and a CircuitBreaker. Only errors wrapping store.ErrStore
// are retried or counted against the breaker; misses, invalid keys and
// caller cancellations pass straight through.
//
//	client := resilience.NewClient(mc, resilience.ClientConfig{
//	    Retry:          resilience.RetryConfig{MaxAttempts: 3, Jitter: true},
//	    CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 5},
//	})
//	registry := cache.NewRegistry(client)
//
// While the circuit is open every call fails fast with ErrCircuitOpen, which
// itself wraps store.ErrStore so cache regions report it like any other
// store failure.
package resilience
