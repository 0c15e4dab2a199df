package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
)

// SendMeta describes one send for telemetry purposes.
type SendMeta struct {
	ProviderID string
	Kind       provider.Kind
	MessageID  string // may be empty until the backend assigns one
}

// MetaFor builds the SendMeta for a request sent through p.
func MetaFor(p provider.Provider, req provider.SendRequest) SendMeta {
	m := SendMeta{ProviderID: p.ID()}
	if req != nil {
		m.Kind = req.Kind()
		m.MessageID = req.Base().MessageID
	}
	return m
}

// SpanName returns the span name for this send.
// Format: message.send.<provider id>
func (m SendMeta) SpanName() string {
	return "message.send." + m.ProviderID
}

func (m SendMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("provider.id", m.ProviderID),
		attribute.String("message.kind", string(m.Kind)),
	}
	if m.MessageID != "" {
		attrs = append(attrs, attribute.String("message.id", m.MessageID))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with send-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for one send.
	StartSpan(ctx context.Context, meta SendMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording res or err.
	EndSpan(span trace.Span, res *provider.SendResult, err *fault.Error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta SendMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, res *provider.SendResult, err *fault.Error) {
	if err != nil {
		span.SetAttributes(
			attribute.String("error.code", string(err.Code)),
			attribute.Bool("error.retryable", err.Retryable()),
			attribute.Bool("error.reached_backend", err.ReachedBackend()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
	} else {
		if res != nil {
			span.SetAttributes(attribute.String("message.status", string(res.Status)))
			if res.ProviderMessageID != "" {
				span.SetAttributes(attribute.String("message.provider_id", res.ProviderMessageID))
			}
			if len(res.Warnings) > 0 {
				span.SetAttributes(attribute.Int("message.warnings", len(res.Warnings)))
			}
		}
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
