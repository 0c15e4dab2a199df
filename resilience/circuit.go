package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting every call.
	StateOpen
	// StateHalfOpen means the circuit is admitting trial calls.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	Threshold int

	// Timeout bounds each admitted provider call. Zero means no bound.
	Timeout time.Duration

	// ResetTimeout is how long the circuit stays open before admitting a
	// trial call.
	// Default: 60 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxCalls caps the trial calls in flight while half-open.
	// Zero admits every call once the reset timeout has elapsed.
	HalfOpenMaxCalls int

	// IsFailure reports whether a failure counts toward the threshold.
	// Default: failures that reached a backend
	IsFailure func(*fault.Error) bool

	// OnStateChange is called after each transition, outside the breaker's
	// lock.
	OnStateChange func(from, to State)

	// Now is the clock.
	// Default: time.Now
	Now func() time.Time
}

// CircuitBreaker is a three-state breaker around provider calls.
//
// Consecutive failures reaching Threshold open the circuit. While open every
// call is rejected with NETWORK_SERVICE_UNAVAILABLE without reaching the
// provider. Once ResetTimeout has passed the next call moves the circuit to
// half-open and is admitted; a success closes the circuit and a failure
// opens it again for another ResetTimeout.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailure   time.Time
	nextAttemptAt time.Time
	halfOpenCalls int

	// trialKey marks, in Call.Metadata, a call admitted as a half-open trial.
	trialKey string
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls < 0 {
		config.HalfOpenMaxCalls = 0
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err *fault.Error) bool { return err.ReachedBackend() }
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	cb := &CircuitBreaker{config: config, state: StateClosed}
	cb.trialKey = fmt.Sprintf("circuit.trial.%p", cb)
	return cb
}

// Middleware returns the breaker's hooks.
func (cb *CircuitBreaker) Middleware() Middleware {
	return Middleware{
		Name: "circuit_breaker",
		Pre: func(_ context.Context, call *Call) *fault.Error {
			trial, err := cb.before()
			if err != nil {
				return err
			}
			if trial {
				call.Metadata[cb.trialKey] = true
			}
			call.SetTimeout(cb.config.Timeout)
			return nil
		},
		Post: func(_ context.Context, call *Call, _ *provider.SendResult) {
			cb.after(cb.endTrial(call), nil)
		},
		Error: func(_ context.Context, call *Call, err *fault.Error) (Action, *fault.Error) {
			cb.after(cb.endTrial(call), err)
			return Propagate, nil
		},
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) endTrial(call *Call) bool {
	trial, _ := call.Metadata[cb.trialKey].(bool)
	delete(call.Metadata, cb.trialKey)
	return trial
}

func (cb *CircuitBreaker) before() (trial bool, err *fault.Error) {
	now := cb.config.Now()

	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && !now.Before(cb.nextAttemptAt) {
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
	}
	to := cb.state

	switch {
	case cb.state == StateOpen:
		err = cb.rejection(now)
	case cb.state == StateHalfOpen && cb.config.HalfOpenMaxCalls > 0 && cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls:
		err = cb.rejection(now)
	case cb.state == StateHalfOpen:
		cb.halfOpenCalls++
		trial = true
	}
	cb.mu.Unlock()

	cb.notify(from, to)
	return trial, err
}

func (cb *CircuitBreaker) rejection(now time.Time) *fault.Error {
	e := fault.Local(fault.CodeNetworkServiceUnavailable, "circuit_breaker", "Circuit breaker is open", ErrCircuitOpen).
		WithContext("circuitState", cb.state.String())
	if wait := cb.nextAttemptAt.Sub(now); wait > 0 {
		e = e.WithDetails(fault.ProviderDetails{RetryAfter: wait})
	}
	return e
}

func (cb *CircuitBreaker) after(trial bool, err *fault.Error) {
	now := cb.config.Now()

	cb.mu.Lock()
	from := cb.state
	if trial && cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}

	switch {
	case err == nil:
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
		}
	case cb.config.IsFailure(err):
		cb.failures++
		cb.lastFailure = now
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.Threshold) {
			cb.state = StateOpen
			cb.nextAttemptAt = now.Add(cb.config.ResetTimeout)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// Metrics returns current circuit breaker statistics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{
		State:         cb.state,
		Failures:      cb.failures,
		Successes:     cb.successes,
		LastFailure:   cb.lastFailure,
		NextAttemptAt: cb.nextAttemptAt,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics. Failures is
// the current consecutive failure count.
type CircuitBreakerMetrics struct {
	State         State
	Failures      int
	Successes     int
	LastFailure   time.Time
	NextAttemptAt time.Time
}
