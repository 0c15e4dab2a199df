package fault

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"strings"
	"time"
)

// Context keys attached by the orchestration layer.
const (
	// KeyReachedBackend is false when a failure was produced before any
	// backend was called (routing, registry lookup, circuit, rate limit).
	KeyReachedBackend = "reachedBackend"
	// KeyComponent names the component that produced a substituted error.
	KeyComponent = "component"
	// KeyReason is a short machine-readable reason within a code.
	KeyReason = "reason"
	// KeyProviderID is the provider the failure is attributed to.
	KeyProviderID = "providerId"
)

// ProviderDetails carries backend diagnostics without exposing backend types.
type ProviderDetails struct {
	// StatusCode is the transport status (HTTP) returned by the backend, if any.
	StatusCode int `json:"statusCode,omitempty"`

	// ProviderCode is the backend's native error code, if any.
	ProviderCode string `json:"providerCode,omitempty"`

	// RetryAfter is the backend's hint for when a retry may succeed.
	RetryAfter time.Duration `json:"retryAfter,omitempty"`

	// Raw holds any additional backend-specific fields.
	Raw map[string]any `json:"raw,omitempty"`
}

// Error is the structured failure attached to every failed Result.
//
// Errors are treated as immutable once handed out: the With* methods return
// modified copies.
type Error struct {
	// Code is the taxonomy member. Required.
	Code Code `json:"code"`

	// Message is a human-readable description. Required.
	Message string `json:"message"`

	// Context holds additive metadata about where the failure happened.
	Context map[string]any `json:"context,omitempty"`

	// Details holds backend diagnostics.
	Details *ProviderDetails `json:"providerDetails,omitempty"`

	// Causes is the ordered chain of prior errors.
	Causes []error `json:"-"`

	retryable *bool
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with cause as the first entry of its cause chain.
func Wrap(code Code, cause error, message string) *Error {
	e := &Error{Code: code, Message: message}
	if cause != nil {
		e.Causes = []error{cause}
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Details != nil && e.Details.StatusCode > 0 {
		fmt.Fprintf(&b, " (status=%d)", e.Details.StatusCode)
	}
	return b.String()
}

// Unwrap returns the cause chain for errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	return e.Causes
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) clone() *Error {
	c := *e
	c.Context = maps.Clone(e.Context)
	if e.Causes != nil {
		c.Causes = append([]error(nil), e.Causes...)
	}
	return &c
}

// WithContext returns a copy of e with key set to value in its context.
func (e *Error) WithContext(key string, value any) *Error {
	c := e.clone()
	if c.Context == nil {
		c.Context = make(map[string]any, 1)
	}
	c.Context[key] = value
	return c
}

// WithDetails returns a copy of e carrying the given backend diagnostics.
func (e *Error) WithDetails(d ProviderDetails) *Error {
	c := e.clone()
	c.Details = &d
	return c
}

// WithCause returns a copy of e with cause appended to its cause chain.
func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	if cause != nil {
		c.Causes = append(c.Causes, cause)
	}
	return c
}

// WithRetryable returns a copy of e with an explicit retryability.
func (e *Error) WithRetryable(retryable bool) *Error {
	c := e.clone()
	c.retryable = &retryable
	return c
}

// Retryable reports whether the failure may succeed if attempted again.
//
// An explicit WithRetryable setting wins; otherwise the code default
// applies, then the transport status in Details.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Code.RetryableByDefault() {
		return true
	}
	return e.Details != nil && IsTransientStatus(e.Details.StatusCode)
}

// ReachedBackend reports whether the failure came from a backend call.
// Errors without the KeyReachedBackend context are assumed to have.
func (e *Error) ReachedBackend() bool {
	if e == nil {
		return false
	}
	v, ok := e.Context[KeyReachedBackend].(bool)
	return !ok || v
}

// StatusCode returns the backend status code, or 0 when none is known.
func (e *Error) StatusCode() int {
	if e == nil || e.Details == nil {
		return 0
	}
	return e.Details.StatusCode
}

// Local builds an error produced by the orchestration layer itself, tagged
// so that it is distinguishable from a backend rejection.
func Local(code Code, component, message string, cause error) *Error {
	e := Wrap(code, cause, message)
	e.Context = map[string]any{
		KeyReachedBackend: false,
		KeyComponent:      component,
	}
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code for err, or CodeUnknownError.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeUnknownError
}

// From classifies an arbitrary error into the taxonomy. Errors that already
// are (or wrap) an *Error are returned as that *Error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeNetworkTimeout, err, err.Error())
	case errors.Is(err, context.Canceled):
		// The caller gave up; the backend's health says nothing here.
		return Local(CodeUnknownError, "caller", err.Error(), err).WithRetryable(false)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(CodeNetworkTimeout, err, err.Error())
		}
		return Wrap(CodeNetworkError, err, err.Error())
	}

	return Wrap(CodeUnknownError, err, err.Error())
}
