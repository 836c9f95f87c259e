package handlers

import (
	"context"

	"github.com/justmadeid/social-services/internal/cache"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/version"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version"`
	Cache   cache.HealthStatus `json:"cache"`
	Session models.LoginStatus `json:"session"`
}

// HealthOutput is the output wrapper for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// Health reports on the cache and the saved session. The service is
// "degraded" while the cache is down since scrapes still run uncached.
func (h *Handler) Health(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: version.Get().Version,
		Cache:   h.controls.CacheHealth(ctx),
		Session: h.controls.LoginStatus(ctx),
	}
	if resp.Cache.Status != "healthy" {
		resp.Status = "degraded"
	}
	return &HealthOutput{Body: resp}, nil
}
