package cache

import (
	"time"

	"github.com/jonwraymond/msgops/provider"
)

// Request tags read by DurationPolicy.
const (
	// TagDedupe set to "off" sends the request without deduplication.
	TagDedupe = "dedupe"
	// TagDedupeTTL overrides the suppression window, e.g. "10m".
	TagDedupeTTL = "dedupe.ttl"
)

// DurationPolicy decides how long a sent request suppresses duplicates.
type DurationPolicy struct {
	// Default is used when the request carries no TTL tag.
	Default time.Duration

	// Max caps both Default and tag overrides. Zero means no cap.
	Max time.Duration
}

// For returns the suppression window for req; zero disables dedupe.
// An unparsable TTL tag falls back to Default.
func (p DurationPolicy) For(req provider.SendRequest) time.Duration {
	tags := req.Base().Tags
	if tags[TagDedupe] == "off" {
		return 0
	}
	ttl := p.Default
	if raw, ok := tags[TagDedupeTTL]; ok {
		if d, err := time.ParseDuration(raw); err == nil {
			ttl = d
		}
	}
	if ttl < 0 {
		return 0
	}
	if p.Max > 0 && ttl > p.Max {
		return p.Max
	}
	return ttl
}
