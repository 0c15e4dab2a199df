package resilience

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/jonwraymond/msgops/fault"
)

// RetryAttemptsKey is the Call.Metadata key holding the number of retries
// already requested.
const RetryAttemptsKey = "retry.attempts"

// RetryConfig configures the retry middleware.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retrying; negative values count as zero.
	MaxRetries int

	// RetryDelay is the delay before the first retry.
	// Default: 100ms
	RetryDelay time.Duration

	// BackoffFactor multiplies the delay after each retry.
	// Default: 2.0
	BackoffFactor float64

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// RetryableErrors lists the codes that are retried. When both this and
	// RetryableStatusCodes are empty, fault.Error.Retryable decides.
	RetryableErrors []fault.Code

	// RetryableStatusCodes lists backend status codes that are retried.
	RetryableStatusCodes []int

	// Sleep waits between attempts.
	// Default: a timer that returns early with ctx.Err() on cancellation.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each retry with the 1-based retry number.
	OnRetry func(retry int, err *fault.Error, delay time.Duration)
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
}

// NewRetry returns a middleware that retries failed sends with exponential
// backoff. The delay before retry n (0-based) is
// min(RetryDelay * BackoffFactor^n, MaxDelay), raised to the backend's
// RetryAfter hint when one is present. Once MaxRetries is reached, or for a
// failure that is not retryable, the failure propagates unchanged.
func NewRetry(cfg RetryConfig) Middleware {
	cfg.applyDefaults()
	return Middleware{
		Name: "retry",
		Error: func(ctx context.Context, call *Call, err *fault.Error) (Action, *fault.Error) {
			attempts, _ := call.Metadata[RetryAttemptsKey].(int)
			if attempts >= cfg.MaxRetries || !cfg.retryable(err) {
				return Propagate, nil
			}

			delay := cfg.delay(attempts, err)
			if cfg.Sleep(ctx, delay) != nil {
				return Propagate, nil
			}

			call.Metadata[RetryAttemptsKey] = attempts + 1
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempts+1, err, delay)
			}
			return Retry, nil
		},
	}
}

func (c *RetryConfig) retryable(err *fault.Error) bool {
	if len(c.RetryableErrors) == 0 && len(c.RetryableStatusCodes) == 0 {
		return err.Retryable()
	}
	if slices.Contains(c.RetryableErrors, err.Code) {
		return true
	}
	status := err.StatusCode()
	return status != 0 && slices.Contains(c.RetryableStatusCodes, status)
}

func (c *RetryConfig) delay(attempts int, err *fault.Error) time.Duration {
	d := time.Duration(float64(c.RetryDelay) * math.Pow(c.BackoffFactor, float64(attempts)))
	if err.Details != nil && err.Details.RetryAfter > d {
		d = err.Details.RetryAfter
	}
	return min(d, c.MaxDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
