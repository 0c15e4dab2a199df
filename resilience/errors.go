package resilience

import "errors"

// Sentinel errors attached as causes to the failures this package
// substitutes.
var (
	// ErrCircuitOpen is the cause of a send rejected by an open circuit.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is the cause of a send rejected by the rate limiter.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrTimeout is the cause of a provider call cut short by Call.Timeout.
	ErrTimeout = errors.New("resilience: provider call timed out")
)
