package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordersUpdateSnapshot(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEvent("tab_created")
	m.RecordDecision(true, "policy")
	m.RecordDecision(false, "initial")
	m.RecordMove("success")
	m.RecordMove("error")
	m.RecordRedirect("success")
	m.IncSettleRetries()
	m.IncSettleGiveUps()
	m.IncBurstSuppressions()
	m.IncPatternFailures("aggregateTabsMatchedPattern")
	m.IncLookupFailures("bookmark")

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Events)
	assert.Equal(t, int64(2), s.Decisions)
	assert.Equal(t, int64(1), s.Aggregated)
	assert.Equal(t, int64(1), s.Moves, "failed moves are not counted as moves")
	assert.Equal(t, int64(1), s.Redirects)
	assert.Equal(t, int64(1), s.SettleRetries)
	assert.Equal(t, int64(1), s.SettleGiveUps)
	assert.Equal(t, int64(1), s.Suppressed)
	assert.Equal(t, int64(1), s.PatternFailures)
	assert.Equal(t, int64(1), s.LookupFailures)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("keep", "initial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MovesTotal.WithLabelValues("error")))
}

func TestSeparateRegistries(t *testing.T) {
	// registering twice on one registry would panic
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/api/windows/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/windows/42", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/windows/:id", "204")))
}

func TestTimerNilSafe(t *testing.T) {
	var timer *Timer
	assert.Equal(t, int64(0), int64(timer.Stop()))

	m := NewMetrics(prometheus.NewRegistry())
	assert.GreaterOrEqual(t, int64(NewTimer(m, "created").Stop()), int64(0))
	assert.GreaterOrEqual(t, int64(NewTimer(nil, "created").Stop()), int64(0))
}
