package health

import "github.com/jonwraymond/msgops/provider"

// Status represents the health of a set of providers.
type Status int

const (
	// StatusHealthy indicates every provider is healthy.
	StatusHealthy Status = iota
	// StatusDegraded indicates at least one provider is healthy and at least
	// one is not.
	StatusDegraded
	// StatusUnhealthy indicates no provider is healthy.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Overall computes the combined status of results. An empty set is healthy.
func Overall(results map[string]provider.HealthResult) Status {
	if len(results) == 0 {
		return StatusHealthy
	}

	healthy := 0
	for _, r := range results {
		if r.Healthy {
			healthy++
		}
	}

	switch healthy {
	case len(results):
		return StatusHealthy
	case 0:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}
