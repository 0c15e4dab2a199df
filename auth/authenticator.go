package auth

import (
	"context"
	"net/http"
)

// Authenticator validates the credentials carried by request headers.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: a missing or rejected credential is reported with one of the
//     package sentinels (errors.Is); other errors are internal failures.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Supports reports whether h carries a credential this authenticator
	// handles.
	Supports(h http.Header) bool

	// Authenticate validates the credential in h.
	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}

// Chain tries authenticators in order and uses the first that supports the
// request.
type Chain []Authenticator

// Name returns "chain".
func (Chain) Name() string { return "chain" }

// Supports reports whether any authenticator supports h.
func (c Chain) Supports(h http.Header) bool {
	for _, a := range c {
		if a.Supports(h) {
			return true
		}
	}
	return false
}

// Authenticate delegates to the first authenticator supporting h.
func (c Chain) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	for _, a := range c {
		if a.Supports(h) {
			return a.Authenticate(ctx, h)
		}
	}
	return nil, ErrMissingCredentials
}

var _ Authenticator = Chain(nil)
