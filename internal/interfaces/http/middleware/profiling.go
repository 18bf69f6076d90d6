package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/textile/backend/internal/infrastructure/telemetry"
)

// Profiling labels CPU and allocation samples taken while a request runs
// with its route, method and invoicing workflow.
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" {
			c.Next()
			return
		}

		labels := map[string]string{
			telemetry.ProfilingLabelRoute:    route,
			telemetry.ProfilingLabelMethod:   c.Request.Method,
			telemetry.ProfilingLabelWorkflow: c.Param("workflow"),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
