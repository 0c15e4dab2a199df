package auth

import (
	"context"
	"slices"
	"time"
)

// Method indicates how a caller authenticated.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Scopes understood by the msgopsd API.
const (
	ScopeSend     = "messages:send"
	ScopeCancel   = "messages:cancel"
	ScopeRead     = "providers:read"
	ScopeWildcard = "*"
)

// Identity is an authenticated caller.
type Identity struct {
	// Principal identifies the caller (JWT subject or API key name).
	Principal string

	// Method is how the caller authenticated.
	Method Method

	// Scopes are the operations the caller may perform.
	Scopes []string

	// ExpiresAt is when the credential expires. Zero means never.
	ExpiresAt time.Time
}

// HasScope reports whether the identity holds scope or the wildcard.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Scopes, scope) || slices.Contains(id.Scopes, ScopeWildcard)
}

type contextKey struct{}

// WithIdentity returns a new context with id attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
