package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIKeyHeader is the header carrying an API key.
const APIKeyHeader = "X-API-Key"

// APIKey is a registered key. Only its SHA-256 hash is kept.
type APIKey struct {
	// Name is the principal of callers using the key.
	Name string

	// Hash is the hex SHA-256 of the key, as returned by HashAPIKey.
	Hash string

	// Scopes granted to the key.
	// Default: every scope
	Scopes []string

	// ExpiresAt is when the key stops working. Zero means never.
	ExpiresAt time.Time
}

// HashAPIKey hashes an API key for storage.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ParseAPIKeys parses "name:key" pairs separated by commas into keys
// holding every scope.
func ParseAPIKeys(s string) ([]APIKey, error) {
	var keys []APIKey
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, key, ok := strings.Cut(pair, ":")
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("auth: malformed api key entry %q", name)
		}
		keys = append(keys, APIKey{Name: name, Hash: HashAPIKey(key)})
	}
	return keys, nil
}

// APIKeyAuthenticator validates keys sent in the X-API-Key header.
type APIKeyAuthenticator struct {
	keys []APIKey
	now  func() time.Time
}

// NewAPIKeyAuthenticator creates an authenticator accepting keys.
func NewAPIKeyAuthenticator(keys ...APIKey) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys, now: time.Now}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return "api_key" }

// Supports reports whether h carries an API key.
func (a *APIKeyAuthenticator) Supports(h http.Header) bool {
	return h.Get(APIKeyHeader) != ""
}

// Authenticate validates the API key in h. Every registered hash is
// compared in constant time.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, h http.Header) (*Identity, error) {
	key := strings.TrimSpace(h.Get(APIKeyHeader))
	if key == "" {
		return nil, ErrMissingCredentials
	}
	hash := []byte(HashAPIKey(key))

	var match *APIKey
	for i := range a.keys {
		if subtle.ConstantTimeCompare(hash, []byte(a.keys[i].Hash)) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidCredentials
	}
	if !match.ExpiresAt.IsZero() && a.now().After(match.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	scopes := match.Scopes
	if len(scopes) == 0 {
		scopes = []string{ScopeWildcard}
	}
	return &Identity{
		Principal: match.Name,
		Method:    MethodAPIKey,
		Scopes:    scopes,
		ExpiresAt: match.ExpiresAt,
	}, nil
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
