package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"

	"github.com/textile/backend/internal/infrastructure/telemetry"
)

// httpMetrics holds the HTTP instruments
type httpMetrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	responseSize    metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	in := telemetry.NewInstruments(meter)
	m := &httpMetrics{
		requestTotal: in.Counter("http_server_request_total", "Total number of HTTP requests", "{request}"),
		requestDuration: in.Histogram("http_server_request_duration_seconds",
			"HTTP request latency distribution in seconds", "s", telemetry.HTTPDurationBuckets),
		// PDFs dominate the upper buckets
		responseSize: in.Histogram("http_server_response_size_bytes",
			"HTTP response body size distribution in bytes", "By",
			[]float64{100, 1000, 10000, 100000, 500000, 1000000, 5000000}),
		activeRequests: in.Gauge("http_server_active_requests", "Number of currently active HTTP requests", "{request}"),
	}
	return m, in.Err()
}

// HTTPMetrics records request count, latency, response size and in-flight
// requests. Routes are labelled by pattern, never by raw path.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.activeRequests.Add(ctx, 1)
		c.Next()
		m.activeRequests.Add(ctx, -1)

		route := routePattern(c)
		method := telemetry.AttrHTTPMethod.String(c.Request.Method)
		pattern := telemetry.AttrHTTPRoute.String(route)
		m.requestTotal.Add(ctx, 1, telemetry.Attrs(method, pattern,
			telemetry.AttrHTTPStatusCode.Int(c.Writer.Status())))
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), telemetry.Attrs(method, pattern))
		if size := c.Writer.Size(); size > 0 {
			m.responseSize.Record(ctx, float64(size), telemetry.Attrs(method, pattern))
		}
	}, nil
}

// routePattern returns the matched route, "unknown" for unmatched requests
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
