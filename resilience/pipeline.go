package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
)

// Pipeline wraps a provider with middleware. It is itself a
// provider.Provider.
//
// Each attempt runs Pre hooks in order, then the provider call, then Post
// hooks in reverse order on success. On failure, whether from the provider
// or from a Pre hook, Error hooks run in reverse order for every middleware
// whose Pre completed. If any Error hook returns Retry, a new attempt starts
// from the first Pre hook.
type Pipeline struct {
	next        provider.Provider
	middlewares []Middleware
	logger      observe.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// NewPipeline wraps next. Middleware runs in the order the options add it.
func NewPipeline(next provider.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{next: next, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use adds middleware to the pipeline.
func Use(mws ...Middleware) Option {
	return func(p *Pipeline) {
		p.middlewares = append(p.middlewares, mws...)
	}
}

// WithRetry adds a retry middleware built from cfg.
func WithRetry(cfg RetryConfig) Option {
	return Use(NewRetry(cfg))
}

// WithRateLimiter adds rl's middleware.
func WithRateLimiter(rl *RateLimiter) Option {
	return Use(rl.Middleware())
}

// WithCircuitBreaker adds cb's middleware.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return Use(cb.Middleware())
}

// WithLogger sets the logger receiving retry and rejection events.
func WithLogger(l observe.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// ID implements provider.Provider with the wrapped provider's id.
func (p *Pipeline) ID() string { return p.next.ID() }

// Unwrap returns the wrapped provider.
func (p *Pipeline) Unwrap() provider.Provider { return p.next }

// HealthCheck implements provider.Provider by delegating to the wrapped
// provider.
func (p *Pipeline) HealthCheck(ctx context.Context) provider.HealthResult {
	return p.next.HealthCheck(ctx)
}

// Send implements provider.Provider.
func (p *Pipeline) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	call := &Call{
		Request:    req,
		ProviderID: p.next.ID(),
		Metadata:   make(map[string]any),
	}
	for {
		call.Timeout = 0
		out, retry := p.attempt(ctx, call)
		if !retry || ctx.Err() != nil {
			return out
		}
		p.logger.Debug(ctx, "retrying send",
			observe.Field{Key: "provider_id", Value: call.ProviderID},
			observe.Field{Key: "attempt", Value: call.Attempt + 1},
			observe.Field{Key: "error_code", Value: string(out.Err().Code)},
		)
		call.Attempt++
	}
}

func (p *Pipeline) attempt(ctx context.Context, call *Call) (provider.Outcome, bool) {
	ran := 0
	var err *fault.Error
	for _, m := range p.middlewares {
		if m.Pre != nil {
			if err = m.Pre(ctx, call); err != nil {
				p.logger.Debug(ctx, "send rejected",
					observe.Field{Key: "provider_id", Value: call.ProviderID},
					observe.Field{Key: "middleware", Value: m.Name},
					observe.Field{Key: "error_code", Value: string(err.Code)},
				)
				break
			}
		}
		ran++
	}

	if err == nil {
		out := p.call(ctx, call)
		if out.IsSuccess() {
			for i := ran - 1; i >= 0; i-- {
				if post := p.middlewares[i].Post; post != nil {
					post(ctx, call, out.Value())
				}
			}
			return out, false
		}
		err = out.Err()
	}

	retry := false
	for i := ran - 1; i >= 0; i-- {
		hook := p.middlewares[i].Error
		if hook == nil {
			continue
		}
		action, replaced := hook(ctx, call, err)
		if replaced != nil {
			err = replaced
		}
		if action == Retry {
			retry = true
		}
	}
	return provider.Failed(err), retry
}

// call sends through the wrapped provider, bounded by call.Timeout. A
// provider that ignores cancellation is abandoned when the bound elapses.
func (p *Pipeline) call(ctx context.Context, call *Call) provider.Outcome {
	if call.Timeout <= 0 {
		return p.next.Send(ctx, call.Request)
	}

	ctx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	done := make(chan provider.Outcome, 1)
	go func() {
		done <- p.next.Send(ctx, call.Request)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return provider.Failed(fault.From(ctx.Err()))
		}
		return provider.Failed(
			fault.Wrap(fault.CodeNetworkTimeout, ErrTimeout, fmt.Sprintf("provider call exceeded %s", call.Timeout)).
				WithContext(fault.KeyComponent, "pipeline").
				WithContext(fault.KeyProviderID, call.ProviderID),
		)
	}
}

var (
	_ provider.Provider  = (*Pipeline)(nil)
	_ provider.Unwrapper = (*Pipeline)(nil)
)
