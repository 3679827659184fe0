package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/dembrane/agentic/pkg/models"
)

// pinger is implemented by dependencies that can report reachability.
// coordinator.Coordinator does not declare Ping in its interface (only the
// Redis implementation happens to have one), so it's probed by assertion
// rather than required of every Coordinator.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx := c.Request().Context()

	directoryStatus := "ok"
	if err := s.runs.Ping(ctx); err != nil {
		directoryStatus = "unreachable: " + err.Error()
	}

	coordinatorStatus := "unknown"
	if p, ok := s.coord.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			coordinatorStatus = "unreachable: " + err.Error()
		} else {
			coordinatorStatus = "ok"
		}
	}

	poolHealth := s.pool.Health()

	status := http.StatusOK
	overall := "ok"
	if directoryStatus != "ok" || (coordinatorStatus != "ok" && coordinatorStatus != "unknown") {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	return c.JSON(status, &models.HealthResponse{
		Status: overall,
		Details: &models.HealthDetail{
			Directory:   directoryStatus,
			Coordinator: coordinatorStatus,
			Workers:     poolHealth.TotalWorkers,
			Active:      poolHealth.ActiveWorkers,
		},
	})
}
