package aim3

import (
	"context"

	healthuc "github.com/kailas-cloud/aim3/internal/usecase/health"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status    string            // "ok", "degraded"
	Checks    map[string]string // component -> "ok"/"error"
	Artifacts *int              // nil when the store could not be counted
}

// Health checks the store and the embedding provider.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.health.Check(ctx)
	return healthFromReport(report)
}

func healthFromReport(report healthuc.Report) HealthStatus {
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status:    string(report.Status),
		Checks:    checks,
		Artifacts: report.Artifacts,
	}
}
