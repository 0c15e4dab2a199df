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

func text() provider.ShortText {
	return provider.ShortText{Envelope: provider.Envelope{To: "+100"}, Text: "hi"}
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder returns middleware appending hook events to a shared log.
func recorder(name string, log *[]string, pre *fault.Error, action Action) Middleware {
	return Middleware{
		Name: name,
		Pre: func(context.Context, *Call) *fault.Error {
			*log = append(*log, name+".pre")
			return pre
		},
		Post: func(context.Context, *Call, *provider.SendResult) {
			*log = append(*log, name+".post")
		},
		Error: func(context.Context, *Call, *fault.Error) (Action, *fault.Error) {
			*log = append(*log, name+".error")
			return action, nil
		},
	}
}

func TestPipeline_HookOrderOnSuccess(t *testing.T) {
	var log []string
	p := NewPipeline(mock.New(mock.Config{}),
		Use(recorder("a", &log, nil, Propagate), recorder("b", &log, nil, Propagate)),
	)

	if out := p.Send(context.Background(), text()); out.IsFailure() {
		t.Fatalf("Send() error = %v", out.Err())
	}
	want := []string{"a.pre", "b.pre", "b.post", "a.post"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("hooks = %v, want %v", log, want)
	}
}

func TestPipeline_HookOrderOnFailure(t *testing.T) {
	var log []string
	backend := mock.New(mock.Config{})
	backend.FailNext(fault.New(fault.CodeProviderError, "boom"))
	p := NewPipeline(backend,
		Use(recorder("a", &log, nil, Propagate), recorder("b", &log, nil, Propagate)),
	)

	out := p.Send(context.Background(), text())
	if out.IsSuccess() || out.Err().Code != fault.CodeProviderError {
		t.Fatalf("Send() = %+v", out)
	}
	want := []string{"a.pre", "b.pre", "b.error", "a.error"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("hooks = %v, want %v", log, want)
	}
}

func TestPipeline_PreRejectionSkipsProvider(t *testing.T) {
	var log []string
	backend := mock.New(mock.Config{})
	reject := fault.Local(fault.CodeRateLimitExceeded, "test", "no", nil)
	p := NewPipeline(backend, Use(
		recorder("a", &log, nil, Propagate),
		recorder("b", &log, reject, Propagate),
		recorder("c", &log, nil, Propagate),
	))

	out := p.Send(context.Background(), text())
	if out.Err() != reject {
		t.Fatalf("Send() err = %v, want the Pre rejection", out.Err())
	}
	if backend.Calls() != 0 {
		t.Errorf("provider called %d times", backend.Calls())
	}
	want := []string{"a.pre", "b.pre", "a.error"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("hooks = %v, want %v", log, want)
	}
}

func TestPipeline_ErrorHookReplacesError(t *testing.T) {
	backend := mock.New(mock.Config{})
	backend.FailNext(fault.New(fault.CodeProviderError, "raw"))
	replacement := fault.New(fault.CodeMessageSendFailed, "replaced")
	p := NewPipeline(backend, Use(Middleware{
		Error: func(context.Context, *Call, *fault.Error) (Action, *fault.Error) {
			return Propagate, replacement
		},
	}))

	if got := p.Send(context.Background(), text()).Err(); got != replacement {
		t.Errorf("Send() err = %v, want replacement", got)
	}
}

func TestPipeline_RetryRestartsFromFirstPre(t *testing.T) {
	backend := mock.New(mock.Config{})
	backend.FailNext(fault.New(fault.CodeNetworkError, "reset"))

	var attempts []int
	pres := 0
	p := NewPipeline(backend, Use(Middleware{
		Pre: func(_ context.Context, call *Call) *fault.Error {
			pres++
			attempts = append(attempts, call.Attempt)
			call.Metadata["seen"] = pres
			return nil
		},
		Error: func(_ context.Context, call *Call, _ *fault.Error) (Action, *fault.Error) {
			if call.Metadata["seen"] != 1 {
				t.Errorf("metadata not shared: %v", call.Metadata)
			}
			return Retry, nil
		},
	}))

	if out := p.Send(context.Background(), text()); out.IsFailure() {
		t.Fatalf("Send() error = %v", out.Err())
	}
	if !reflect.DeepEqual(attempts, []int{0, 1}) || backend.Calls() != 2 {
		t.Errorf("attempts = %v, calls = %d", attempts, backend.Calls())
	}
}

type blockingProvider struct{ mock.Provider }

func (b *blockingProvider) Send(context.Context, provider.SendRequest) provider.Outcome {
	time.Sleep(time.Second)
	return provider.Sent(&provider.SendResult{})
}

func TestPipeline_CallTimeout(t *testing.T) {
	tests := []struct {
		name    string
		backend provider.Provider
	}{
		{"provider honors context", mock.New(mock.Config{Latency: time.Second})},
		{"provider ignores context", &blockingProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.backend, Use(Middleware{
				Pre: func(_ context.Context, call *Call) *fault.Error {
					call.SetTimeout(20 * time.Millisecond)
					return nil
				},
			}))

			start := time.Now()
			out := p.Send(context.Background(), text())
			if out.IsSuccess() || out.Err().Code != fault.CodeNetworkTimeout {
				t.Fatalf("Send() = %+v, want NETWORK_TIMEOUT", out)
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Errorf("Send() took %v", time.Since(start))
			}
		})
	}
}

func TestPipeline_TimeoutCause(t *testing.T) {
	p := NewPipeline(&blockingProvider{}, Use(Middleware{
		Pre: func(_ context.Context, call *Call) *fault.Error {
			call.SetTimeout(10 * time.Millisecond)
			return nil
		},
	}))
	if err := p.Send(context.Background(), text()).Err(); !errors.Is(err, ErrTimeout) || !err.ReachedBackend() {
		t.Errorf("err = %v", err)
	}
}

func TestCall_SetTimeout(t *testing.T) {
	var c Call
	c.SetTimeout(0)
	c.SetTimeout(time.Second)
	c.SetTimeout(2 * time.Second)
	if c.Timeout != time.Second {
		t.Errorf("Timeout = %v, want the smallest", c.Timeout)
	}
}

func TestPipeline_ProviderSurface(t *testing.T) {
	backend := mock.New(mock.Config{ID: "sms"})
	p := NewPipeline(backend)

	if p.ID() != "sms" || p.Unwrap() != provider.Provider(backend) {
		t.Errorf("ID() = %q, Unwrap() = %v", p.ID(), p.Unwrap())
	}
	if !p.HealthCheck(context.Background()).Healthy {
		t.Error("HealthCheck() not delegated")
	}
	if _, ok := provider.CapabilitiesOf(p); !ok {
		t.Error("capabilities not found through the pipeline")
	}
}
