package observe

import (
	"bytes"
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
)

type fakeProvider struct {
	id      string
	out     provider.Outcome
	health  provider.HealthResult
	sawSpan bool
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Send(ctx context.Context, _ provider.SendRequest) provider.Outcome {
	f.sawSpan = trace.SpanContextFromContext(ctx).IsValid()
	return f.out
}

func (f *fakeProvider) HealthCheck(context.Context) provider.HealthResult { return f.health }

func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsBulk: true}
}

type testRig struct {
	mw     *Middleware
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	var buf bytes.Buffer
	logger, _ := NewLogger("debug", &buf)

	return &testRig{
		mw:     NewMiddleware(NewTracer(tp.Tracer("test")), metrics, logger),
		spans:  rec,
		reader: reader,
		logs:   &buf,
	}
}

func shortText() provider.SendRequest {
	return provider.ShortText{Envelope: provider.Envelope{To: "+1", MessageID: "m1"}, Text: "hi"}
}

func TestMiddleware_SuccessPath(t *testing.T) {
	rig := newRig(t)
	inner := &fakeProvider{
		id:  "sms-a",
		out: provider.Sent(&provider.SendResult{MessageID: "m1", ProviderID: "sms-a", Status: provider.StatusSent}),
	}

	p := rig.mw.Wrap(inner)
	out := p.Send(context.Background(), shortText())

	if !out.IsSuccess() || out.Value().MessageID != "m1" {
		t.Fatalf("Send() = %+v", out)
	}
	if p.ID() != "sms-a" {
		t.Errorf("ID() = %q", p.ID())
	}
	if !inner.sawSpan {
		t.Error("inner provider did not receive the span context")
	}

	spans := rig.spans.Ended()
	if len(spans) != 1 || spans[0].Name() != "message.send.sms-a" {
		t.Fatalf("spans = %v", spans)
	}

	total := findMetric(collect(t, rig.reader), "message.send.total")
	if total == nil || sumOf(t, total) != 1 {
		t.Error("message.send.total not recorded")
	}

	entries := decodeLines(t, rig.logs)
	if len(entries) != 1 || entries[0]["msg"] != "message sent" {
		t.Errorf("logs = %v", entries)
	}
}

func TestMiddleware_FailurePassesThroughUnchanged(t *testing.T) {
	rig := newRig(t)
	want := fault.New(fault.CodeTemplateNotFound, "no such template")
	inner := &fakeProvider{id: "chat", out: provider.Failed(want)}

	out := rig.mw.Wrap(inner).Send(context.Background(), shortText())

	if !out.IsFailure() || out.Err() != want {
		t.Fatalf("Send() err = %v, want the inner error", out.Err())
	}

	errs := findMetric(collect(t, rig.reader), "message.send.errors")
	if errs == nil || sumOf(t, errs) != 1 {
		t.Error("message.send.errors not recorded")
	}

	entries := decodeLines(t, rig.logs)
	if len(entries) != 1 || entries[0]["level"] != "error" || entries[0]["error_code"] != "TEMPLATE_NOT_FOUND" {
		t.Errorf("logs = %v", entries)
	}
}

func TestMiddleware_WarningsLogged(t *testing.T) {
	rig := newRig(t)
	res := (&provider.SendResult{MessageID: "m1", Status: provider.StatusSent}).
		WithWarning(provider.Warning{Code: "FALLBACK_PARTIAL", Message: "subject dropped"})
	inner := &fakeProvider{id: "chat", out: provider.Sent(res)}

	rig.mw.Wrap(inner).Send(context.Background(), shortText())

	entries := decodeLines(t, rig.logs)
	if len(entries) != 2 || entries[0]["warning_code"] != "FALLBACK_PARTIAL" {
		t.Errorf("logs = %v", entries)
	}
}

func TestMiddleware_KeepsOptionalCapabilities(t *testing.T) {
	rig := newRig(t)
	p := rig.mw.Wrap(&fakeProvider{id: "x"})

	caps, ok := provider.CapabilitiesOf(p)
	if !ok || !caps.SupportsBulk {
		t.Errorf("CapabilitiesOf(wrapped) = (%+v, %v)", caps, ok)
	}
}

func TestMiddleware_HealthCheckLogsUnhealthy(t *testing.T) {
	rig := newRig(t)
	inner := &fakeProvider{id: "x", health: provider.HealthResult{Issues: []string{"down"}}}

	h := rig.mw.Wrap(inner).HealthCheck(context.Background())
	if h.Healthy {
		t.Error("Healthy = true")
	}
	entries := decodeLines(t, rig.logs)
	if len(entries) != 1 || entries[0]["msg"] != "provider unhealthy" {
		t.Errorf("logs = %v", entries)
	}
}
