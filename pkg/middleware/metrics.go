package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wms-platform/warehouse-task-service/pkg/metrics"
)

// MetricsMiddleware creates middleware that records HTTP metrics
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid recursion
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		// Track in-flight requests
		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath() // Use route pattern, not actual path

		// If no route matched, use the raw path
		if path == "" {
			path = c.Request.URL.Path
		}

		m.RecordHTTPRequest(method, path, status, duration)
	}
}

// MetricsEndpoint returns a handler for the /metrics endpoint
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	handler := m.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// TaskMetrics provides helpers for recording task lifecycle metrics
type TaskMetrics struct {
	metrics *metrics.Metrics
}

// NewTaskMetrics creates a new TaskMetrics helper
func NewTaskMetrics(m *metrics.Metrics) *TaskMetrics {
	return &TaskMetrics{metrics: m}
}

// RecordTaskPlanned records a planned task
func (t *TaskMetrics) RecordTaskPlanned(warehouseID, taskType string) {
	t.metrics.RecordTaskPlanned(warehouseID, taskType)
}

// RecordTaskClaimed records a successful claim
func (t *TaskMetrics) RecordTaskClaimed(warehouseID, workerType string) {
	t.metrics.RecordTaskClaimed(warehouseID, workerType)
}

// RecordClaimConflict records a lost claim race
func (t *TaskMetrics) RecordClaimConflict(warehouseID string) {
	t.metrics.RecordClaimConflict(warehouseID)
}

// RecordTaskRequeued records a requeued assignment
func (t *TaskMetrics) RecordTaskRequeued(warehouseID, reason string) {
	t.metrics.RecordTaskRequeued(warehouseID, reason)
}

// RecordTaskCompleted records a completed task
func (t *TaskMetrics) RecordTaskCompleted(warehouseID, taskType string) {
	t.metrics.RecordTaskCompleted(warehouseID, taskType)
}

// RecordRouteOptimized records an optimized route
func (t *TaskMetrics) RecordRouteOptimized(warehouseID string, stops int, distance float64) {
	t.metrics.RecordRouteOptimized(warehouseID, stops, distance)
}

// RecordCircuitBreakerState records circuit breaker state
func (t *TaskMetrics) RecordCircuitBreakerState(name string, state int) {
	t.metrics.SetCircuitBreakerState(name, state)
}
