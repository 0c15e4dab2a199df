// Package observe provides observability for message sends.
//
// It is a pure instrumentation library: no dispatch, no transport, no I/O
// beyond exporter setup. An Observer owns the tracer, meter and logger; a
// Middleware built from it decorates any provider.Provider with a span, send
// metrics and a structured log line per call:
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//	    ServiceName: "msgopsd",
//	    Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp"},
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	mw, err := observe.MiddlewareFromObserver(obs)
//	p = mw.Wrap(p)
//
// Logs are JSON lines produced by zap. Fields whose keys name credentials or
// message content are redacted.
package observe
