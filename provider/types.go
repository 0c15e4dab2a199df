package provider

import (
	"slices"
	"sort"
)

// Status is the delivery state reported by a backend.
type Status string

const (
	// StatusSent means the backend accepted the message for delivery.
	StatusSent Status = "SENT"
	// StatusPending means the backend queued or scheduled the message.
	StatusPending Status = "PENDING"
	// StatusFailed means the backend accepted the call but reports failure.
	StatusFailed Status = "FAILED"
)

// Warning reports non-fatal degraded behavior on an otherwise successful send.
type Warning struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SendResult describes an accepted message.
type SendResult struct {
	MessageID         string    `json:"messageId"`
	ProviderID        string    `json:"providerId"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	Status            Status    `json:"status"`
	Warnings          []Warning `json:"warnings,omitempty"`
}

// WithWarning returns a copy of r with w appended to its warnings.
func (r *SendResult) WithWarning(w Warning) *SendResult {
	c := *r
	c.Warnings = append(slices.Clone(r.Warnings), w)
	return &c
}

// Capabilities describes a backend's limits.
type Capabilities struct {
	MaxRecipientsPerRequest int  `json:"maxRecipientsPerRequest"`
	MaxRequestsPerSecond    int  `json:"maxRequestsPerSecond"`
	SupportsBulk            bool `json:"supportsBulk"`
	SupportsScheduling      bool `json:"supportsScheduling"`
	SupportsTemplating      bool `json:"supportsTemplating"`
}

// Metadata describes a provider type. It is produced once per factory and
// treated as immutable.
type Metadata struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	SupportedFeatures []string          `json:"supportedFeatures"`
	Capabilities      Capabilities      `json:"capabilities"`
	Endpoints         map[string]string `json:"endpoints,omitempty"`
	AuthType          string            `json:"authType,omitempty"`
}

// Supports reports whether feature is in the metadata's feature set.
func (m Metadata) Supports(feature string) bool {
	return slices.Contains(m.SupportedFeatures, feature)
}

// normalized returns a copy with a sorted, de-duplicated feature set and
// its own endpoint map.
func (m Metadata) normalized() Metadata {
	features := slices.Clone(m.SupportedFeatures)
	sort.Strings(features)
	m.SupportedFeatures = slices.Compact(features)

	if m.Endpoints != nil {
		endpoints := make(map[string]string, len(m.Endpoints))
		for k, v := range m.Endpoints {
			endpoints[k] = v
		}
		m.Endpoints = endpoints
	}
	return m
}
