package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
)

const readinessTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// OpsHandler serves health and provider status.
type OpsHandler struct {
	version  string
	checks   map[string]Check
	registry *resilience.Registry
	logger   zerolog.Logger
}

// NewOpsHandler creates an OpsHandler. checks are run by the readiness
// probe; registry may be nil.
func NewOpsHandler(version string, checks map[string]Check, registry *resilience.Registry, logger zerolog.Logger) *OpsHandler {
	return &OpsHandler{
		version:  version,
		checks:   checks,
		registry: registry,
		logger:   logger.With().Str("handler", "ops").Logger(),
	}
}

// Live handles GET /health/live.
func (h *OpsHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  models.HealthStatusOK,
		Version: h.version,
		Time:    models.Timestamp(time.Now()),
	})
}

// Ready handles GET /health/ready. Any failing dependency fails the probe.
func (h *OpsHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	health := models.Health{
		Status:       models.HealthStatusOK,
		Version:      h.version,
		Time:         models.Timestamp(time.Now()),
		Dependencies: make(map[string]models.HealthStatus, len(h.checks)),
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			health.Dependencies[name] = models.HealthStatusFail
			health.Status = models.HealthStatusFail
			continue
		}
		health.Dependencies[name] = models.HealthStatusOK
	}

	status := http.StatusOK
	if health.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// Providers handles GET /v1/meta/providers.
func (h *OpsHandler) Providers(w http.ResponseWriter, r *http.Request) {
	resp := models.ProvidersResponse{Providers: []models.ProviderStatus{}}
	if h.registry != nil {
		for _, p := range h.registry.Snapshot() {
			resp.Providers = append(resp.Providers, models.ProviderStatusFrom(p))
		}
	}
	response.JSON(w, r, http.StatusOK, resp)
}
