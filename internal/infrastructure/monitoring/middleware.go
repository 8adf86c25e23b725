package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures how long a decision flow takes
type Timer struct {
	start   time.Time
	metrics *Metrics
	flow    string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, flow string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		flow:    flow,
	}
}

// Stop records the elapsed time. A nil timer or metrics is a no-op.
func (t *Timer) Stop() time.Duration {
	if t == nil {
		return 0
	}
	elapsed := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.DecisionDuration.WithLabelValues(t.flow).Observe(elapsed.Seconds())
	}
	return elapsed
}
