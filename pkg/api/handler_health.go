package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only in-process components are checked;
// external services (mail, AI providers) are excluded so a flaky upstream
// cannot make a supervisor restart the core.
func (s *Server) healthHandler(c *echo.Context) error {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.workerPool != nil {
		poolHealth := s.workerPool.Health()
		if poolHealth != nil && !poolHealth.IsHealthy {
			status = healthStatusDegraded
			checks["worker_pool"] = HealthCheck{
				Status:  healthStatusDegraded,
				Message: "workers not running or over capacity",
			}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if _, err := s.queueStore.Pending(c.Request().Context()); err != nil {
		status = healthStatusUnhealthy
		checks["queue_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: s.maskText(err.Error())}
	} else {
		checks["queue_store"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
