package models

import (
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
)

// Health is the body of the health endpoints.
type Health struct {
	Status       HealthStatus            `json:"status"`
	Version      string                  `json:"version,omitempty"`
	Time         Timestamp               `json:"time"`
	Dependencies map[string]HealthStatus `json:"dependencies,omitempty"`
}

// ProviderStatus reports the circuit of one external provider.
type ProviderStatus struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Requests      uint32     `json:"requests"`
	Failures      uint32     `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp `json:"lastFailureAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// ProvidersResponse is the body of GET /v1/meta/providers.
type ProvidersResponse struct {
	Providers []ProviderStatus `json:"providers"`
}

// ProviderStatusFrom converts a registry snapshot entry.
func ProviderStatusFrom(h resilience.ProviderHealth) ProviderStatus {
	out := ProviderStatus{
		Name:      h.Name,
		Status:    h.Status(),
		Requests:  h.Counts.Requests,
		Failures:  h.Counts.ConsecutiveFailures,
		LastError: h.LastError,
	}
	if h.LastSuccessAt != nil {
		ts := Timestamp(*h.LastSuccessAt)
		out.LastSuccessAt = &ts
	}
	if h.LastFailureAt != nil {
		ts := Timestamp(*h.LastFailureAt)
		out.LastFailureAt = &ts
	}
	return out
}
