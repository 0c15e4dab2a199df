// Package resilience wraps provider calls with retry, rate limiting and
// circuit breaking.
//
// Each pattern is a Middleware: a set of optional Pre, Post and Error hooks.
// A Pipeline runs the hooks around a single provider and is itself a
// provider.Provider, so it composes with routers and registries.
//
// # Patterns
//
//   - Retry: on a retryable failure, waits with exponential backoff and asks
//     the pipeline for another attempt, up to MaxRetries.
//
//   - Rate Limiter: sliding windows per second, minute, hour and day.
//     Sends over any limit are rejected before reaching the provider.
//
//   - Circuit Breaker: opens after Threshold consecutive backend failures,
//     rejects sends while open, and admits trial sends after ResetTimeout.
//
// Rejections by the rate limiter and the circuit breaker carry
// reachedBackend=false in their context, so callers can tell a local
// rejection from a backend failure.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    Threshold:    3,
//	    ResetTimeout: 30 * time.Second,
//	})
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	    MessagesPerSecond: 10,
//	})
//
//	p := resilience.NewPipeline(backend,
//	    resilience.WithRetry(resilience.RetryConfig{MaxRetries: 2}),
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRateLimiter(rl),
//	)
//	out := p.Send(ctx, req)
//
// Order matters: with retry first, every retry passes through the breaker
// and the limiter again.
package resilience
