package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/msgops/provider"
)

// Keyer derives the dedupe key of a send. An empty key means the send is
// not deduplicated.
//
// Contract:
//   - Determinism: equal requests to the same provider produce equal keys.
//   - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(providerID string, req provider.SendRequest) (string, error)
}

// MessageIDKeyer keys sends by the caller's message id.
type MessageIDKeyer struct{}

// Key returns "send:<provider>:<messageId>", or "" without a message id.
func (MessageIDKeyer) Key(providerID string, req provider.SendRequest) (string, error) {
	id := req.Base().MessageID
	if id == "" {
		return "", nil
	}
	return fmt.Sprintf("send:%s:%s", providerID, id), nil
}

// ContentKeyer keys sends by message id when present and otherwise by a
// hash of the request's JSON form, so identical bodies to the same
// recipient are suppressed too.
type ContentKeyer struct{}

// Key returns the message id key or "send:<provider>:h:<hash>", where hash
// is the first 16 hex characters of SHA-256 over the kind and body.
func (ContentKeyer) Key(providerID string, req provider.SendRequest) (string, error) {
	if key, _ := (MessageIDKeyer{}).Key(providerID, req); key != "" {
		return key, nil
	}
	// encoding/json emits struct fields in declaration order and map keys
	// sorted, which makes the encoding canonical.
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("cache: encode request: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(req.Kind()))
	h.Write([]byte{0})
	h.Write(body)
	return fmt.Sprintf("send:%s:h:%s", providerID, hex.EncodeToString(h.Sum(nil)[:8])), nil
}

var (
	_ Keyer = MessageIDKeyer{}
	_ Keyer = ContentKeyer{}
)
