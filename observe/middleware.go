package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/msgops/provider"
)

// Middleware decorates providers with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: wrapped providers are safe for concurrent use when the
//     inner provider is.
//   - Errors: outcomes from the wrapped provider are recorded and returned
//     unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap returns p instrumented with m. The result implements
// provider.Unwrapper so optional capabilities of p stay discoverable.
func (m *Middleware) Wrap(p provider.Provider) provider.Provider {
	return &instrumented{next: p, mw: m}
}

type instrumented struct {
	next provider.Provider
	mw   *Middleware
}

func (i *instrumented) ID() string { return i.next.ID() }

func (i *instrumented) Unwrap() provider.Provider { return i.next }

func (i *instrumented) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	meta := MetaFor(i.next, req)
	m := i.mw

	ctx, sp := m.tracer.StartSpan(ctx, meta)
	start := m.now()

	out := i.next.Send(ctx, req)

	duration := m.now().Sub(start)
	res, ferr := out.Get()
	m.tracer.EndSpan(sp, res, ferr)
	m.metrics.RecordSend(ctx, meta, duration, ferr)

	fields := []Field{
		{Key: "provider_id", Value: meta.ProviderID},
		{Key: "kind", Value: string(meta.Kind)},
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	if ferr != nil {
		fields = append(fields,
			Field{Key: "error_code", Value: string(ferr.Code)},
			Field{Key: "error", Value: ferr.Error()},
			Field{Key: "reached_backend", Value: ferr.ReachedBackend()},
		)
		m.logger.Error(ctx, "message send failed", fields...)
		return out
	}

	if res != nil {
		fields = append(fields,
			Field{Key: "message_id", Value: res.MessageID},
			Field{Key: "status", Value: string(res.Status)},
		)
		for _, w := range res.Warnings {
			m.logger.Warn(ctx, "message send warning",
				Field{Key: "provider_id", Value: meta.ProviderID},
				Field{Key: "warning_code", Value: w.Code},
				Field{Key: "warning", Value: w.Message},
			)
		}
	}
	m.logger.Info(ctx, "message sent", fields...)
	return out
}

func (i *instrumented) HealthCheck(ctx context.Context) provider.HealthResult {
	h := i.next.HealthCheck(ctx)
	if !h.Healthy {
		i.mw.logger.Warn(ctx, "provider unhealthy",
			Field{Key: "provider_id", Value: i.next.ID()},
			Field{Key: "issues", Value: h.Issues},
		)
	}
	return h
}
