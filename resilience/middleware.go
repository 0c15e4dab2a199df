package resilience

import (
	"context"
	"time"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
)

// Call is the state of one send as it moves through a Pipeline. The same
// Call is passed to every hook of every attempt.
type Call struct {
	// Request is the message being sent.
	Request provider.SendRequest

	// ProviderID is the id of the wrapped provider.
	ProviderID string

	// Attempt is the zero-based attempt number.
	Attempt int

	// Metadata is call-scoped storage shared by all hooks across attempts.
	Metadata map[string]any

	// Timeout bounds the provider call of the current attempt. It is reset
	// before each attempt; Pre hooks may set it. Zero means no bound.
	Timeout time.Duration
}

// SetTimeout lowers Timeout to d. A zero or larger d leaves it unchanged.
func (c *Call) SetTimeout(d time.Duration) {
	if d > 0 && (c.Timeout == 0 || d < c.Timeout) {
		c.Timeout = d
	}
}

// Action is what an Error hook asks the Pipeline to do next.
type Action int

const (
	// Propagate lets the failure continue outward.
	Propagate Action = iota

	// Retry asks the Pipeline to start a new attempt.
	Retry
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Propagate:
		return "propagate"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Middleware is a set of optional hooks around a provider call.
//
// Hooks hold their own state (rate windows, circuit state) and must be safe
// for concurrent use; the same Middleware serves every send through a
// Pipeline.
type Middleware struct {
	// Name identifies the middleware in logs.
	Name string

	// Pre runs before the provider call. A non-nil error rejects the
	// attempt without calling the provider.
	Pre func(ctx context.Context, call *Call) *fault.Error

	// Post runs after a successful provider call.
	Post func(ctx context.Context, call *Call, res *provider.SendResult)

	// Error runs after a failed attempt. A non-nil returned error replaces
	// the failure seen by the remaining hooks and the caller.
	Error func(ctx context.Context, call *Call, err *fault.Error) (Action, *fault.Error)
}
