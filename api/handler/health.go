package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/uicheck/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports run and context counts and degrades status when every run slot is taken.
func Health(m *RunManager, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, slots := m.Active()

		status := "healthy"
		if active >= slots {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			ActiveRuns: active,
			MaxRuns:    slots,
			Contexts:   m.ContextStats(),
			Version:    Version,
		})
	}
}
