package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/msgops/fault"
)

// Metrics records send metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordSend records one send with its duration and failure, if any.
	RecordSend(ctx context.Context, meta SendMeta, duration time.Duration, err *fault.Error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the send instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"message.send.total",
		metric.WithDescription("Total number of message sends"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"message.send.errors",
		metric.WithDescription("Total number of failed message sends"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"message.send.duration_ms",
		metric.WithDescription("Message send duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordSend(ctx context.Context, meta SendMeta, duration time.Duration, err *fault.Error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.id", meta.ProviderID),
		attribute.String("message.kind", string(meta.Kind)),
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			append(attrs, attribute.String("error.code", string(err.Code)))...,
		))
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}
