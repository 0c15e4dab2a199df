package resilience

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/providers/mock"
)

func backendFailure() *fault.Error {
	return fault.New(fault.CodeProviderError, "backend down")
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.config.Threshold != 5 {
		t.Errorf("Threshold = %d, want 5", cb.config.Threshold)
	}
	if cb.config.ResetTimeout != 60*time.Second {
		t.Errorf("ResetTimeout = %v, want 60s", cb.config.ResetTimeout)
	}
	if cb.config.HalfOpenMaxCalls != 0 {
		t.Errorf("HalfOpenMaxCalls = %d, want 0", cb.config.HalfOpenMaxCalls)
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:    3,
		ResetTimeout: 10 * time.Second,
		Now:          clock.Now,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	backend := mock.New(mock.Config{})
	p := NewPipeline(backend, WithCircuitBreaker(cb))

	backend.FailNext(backendFailure(), backendFailure(), backendFailure())
	for i := range 3 {
		if p.Send(context.Background(), text()).IsSuccess() {
			t.Fatalf("send %d succeeded", i)
		}
	}
	if cb.State() != StateOpen || cb.Metrics().Failures != 3 {
		t.Fatalf("after 3 failures: %+v", cb.Metrics())
	}

	out := p.Send(context.Background(), text())
	err := out.Err()
	if err == nil || err.Code != fault.CodeNetworkServiceUnavailable || !errors.Is(err, ErrCircuitOpen) || err.ReachedBackend() {
		t.Fatalf("4th send = %+v, want circuit-open rejection", out)
	}
	if backend.Calls() != 3 {
		t.Errorf("provider called %d times, want 3", backend.Calls())
	}
	if err.Details == nil || err.Details.RetryAfter != 10*time.Second {
		t.Errorf("details = %+v", err.Details)
	}

	clock.Advance(10 * time.Second)
	if out := p.Send(context.Background(), text()); out.IsFailure() {
		t.Fatalf("trial send failed: %v", out.Err())
	}
	if backend.Calls() != 4 {
		t.Errorf("trial not admitted: calls = %d", backend.Calls())
	}
	if m := cb.Metrics(); m.State != StateClosed || m.Failures != 0 {
		t.Errorf("after trial success: %+v", m)
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if !reflect.DeepEqual(transitions, want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetTimeout: time.Second, Now: clock.Now})
	backend := mock.New(mock.Config{})
	p := NewPipeline(backend, WithCircuitBreaker(cb))

	backend.FailNext(backendFailure())
	p.Send(context.Background(), text())
	clock.Advance(time.Second)

	backend.FailNext(backendFailure())
	p.Send(context.Background(), text())
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed trial", cb.State())
	}
	if m := cb.Metrics(); !m.NextAttemptAt.Equal(clock.Now().Add(time.Second)) {
		t.Errorf("NextAttemptAt = %v", m.NextAttemptAt)
	}
	if p.Send(context.Background(), text()).IsSuccess() {
		t.Error("send admitted right after reopening")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2})
	backend := mock.New(mock.Config{})
	p := NewPipeline(backend, WithCircuitBreaker(cb))

	backend.FailNext(backendFailure())
	p.Send(context.Background(), text())
	p.Send(context.Background(), text())
	backend.FailNext(backendFailure())
	p.Send(context.Background(), text())

	if cb.State() != StateClosed || cb.Metrics().Failures != 1 {
		t.Errorf("metrics = %+v, want closed with 1 consecutive failure", cb.Metrics())
	}
}

func TestCircuitBreaker_LocalRejectionsDoNotCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1})
	backend := mock.New(mock.Config{})
	rl := NewRateLimiter(RateLimiterConfig{MessagesPerSecond: 1, Now: newFakeClock().Now})
	p := NewPipeline(backend, WithCircuitBreaker(cb), WithRateLimiter(rl))

	p.Send(context.Background(), text())
	if out := p.Send(context.Background(), text()); out.Err().Code != fault.CodeRateLimitExceeded {
		t.Fatalf("Send() = %+v", out)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, rate limit rejection opened the circuit", cb.State())
	}
}

func TestCircuitBreaker_InvalidRequestsDoNotCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2})
	backend := mock.New(mock.Config{})
	p := NewPipeline(backend, WithCircuitBreaker(cb))

	noRecipient := provider.ShortText{Text: "hi"}
	for i := range 3 {
		out := p.Send(context.Background(), noRecipient)
		if out.IsSuccess() || out.Err().Code != fault.CodeInvalidRequest {
			t.Fatalf("invalid send %d = %+v", i, out)
		}
		if out.Err().ReachedBackend() {
			t.Fatalf("invalid send %d reported reaching the backend", i)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, invalid requests opened the circuit", cb.State())
	}
	if out := p.Send(context.Background(), text()); out.IsFailure() {
		t.Fatalf("valid send after invalid ones = %v", out.Err())
	}
}

func TestCircuitBreaker_CallerCancellationDoesNotCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2})
	backend := mock.New(mock.Config{Latency: time.Second})
	p := NewPipeline(backend, WithCircuitBreaker(cb))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := range 3 {
		out := p.Send(ctx, text())
		if out.IsSuccess() || !errors.Is(out.Err(), context.Canceled) {
			t.Fatalf("cancelled send %d = %+v", i, out)
		}
	}
	if cb.State() != StateClosed || cb.Metrics().Failures != 0 {
		t.Fatalf("metrics = %+v, caller cancellations counted as failures", cb.Metrics())
	}
}

// gatedProvider blocks every send until release is closed.
type gatedProvider struct {
	*mock.Provider
	entered chan struct{}
	release chan struct{}
}

func (g *gatedProvider) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	g.entered <- struct{}{}
	<-g.release
	return g.Provider.Send(ctx, req)
}

func TestCircuitBreaker_HalfOpenAdmission(t *testing.T) {
	tests := []struct {
		name         string
		maxCalls     int
		wantAdmitted int
	}{
		{"unlimited trials", 0, 3},
		{"single trial", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Threshold:        1,
				ResetTimeout:     time.Second,
				HalfOpenMaxCalls: tt.maxCalls,
				Now:              clock.Now,
			})
			gate := &gatedProvider{
				Provider: mock.New(mock.Config{}),
				entered:  make(chan struct{}, 3),
				release:  make(chan struct{}),
			}
			p := NewPipeline(gate, WithCircuitBreaker(cb))

			cb.after(false, backendFailure())
			clock.Advance(time.Second)

			var wg sync.WaitGroup
			rejected := make(chan struct{}, 3)
			for range 3 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if out := p.Send(context.Background(), text()); out.IsFailure() && errors.Is(out.Err(), ErrCircuitOpen) {
						rejected <- struct{}{}
					}
				}()
			}

			// Every call is either parked in the provider or rejected.
			for range 3 {
				select {
				case <-gate.entered:
				case <-rejected:
				case <-time.After(time.Second):
					t.Fatal("calls did not settle")
				}
			}
			close(gate.release)
			wg.Wait()

			if got := gate.Calls(); got != tt.wantAdmitted {
				t.Errorf("admitted = %d, want %d", got, tt.wantAdmitted)
			}
			if cb.State() != StateClosed {
				t.Errorf("state = %v, want closed after successful trials", cb.State())
			}
		})
	}
}

func TestCircuitBreaker_TimeoutBoundsCall(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, Timeout: 10 * time.Millisecond})
	p := NewPipeline(mock.New(mock.Config{Latency: time.Second}), WithCircuitBreaker(cb))

	if out := p.Send(context.Background(), text()); out.IsSuccess() || out.Err().Code != fault.CodeNetworkTimeout {
		t.Fatalf("Send() = %+v, want NETWORK_TIMEOUT", out)
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %v, timeouts should count as failures", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1})
	cb.after(false, backendFailure())
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	cb.Reset()
	if m := cb.Metrics(); m.State != StateClosed || m.Failures != 0 {
		t.Errorf("after Reset: %+v", m)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
