package simulator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

// HealthChecks holds individual check results.
type HealthChecks struct {
	Store   bool   `json:"store"`
	Catalog string `json:"catalog,omitempty"`
}

// Health checks the simulator health.
func (s *Service) Health(ctx context.Context) pkgservice.Health {
	checks := HealthChecks{Store: s.store.Ping(ctx) == nil}
	if cat := s.Catalog(); cat != nil {
		checks.Catalog = cat.Name() + "@" + cat.Version()
	}

	status := "healthy"
	if !checks.Store || checks.Catalog == "" {
		status = "unhealthy"
	}

	details, _ := json.Marshal(struct {
		HealthChecks
		Timestamp string `json:"timestamp"`
	}{checks, time.Now().UTC().Format(time.RFC3339)})

	return pkgservice.Health{
		Status:    status,
		Version:   s.config.Version,
		Downloads: s.Downloads(),
		Details:   details,
	}
}
