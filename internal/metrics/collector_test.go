package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	return NewCollector("workflow", prometheus.NewRegistry(), zap.NewNop())
}

func TestNewCollector(t *testing.T) {
	c := newTestCollector()

	assert.NotNil(t, c.httpRequestsTotal)
	assert.NotNil(t, c.httpRequestDuration)
	assert.NotNil(t, c.runsTotal)
	assert.NotNil(t, c.runDuration)
	assert.NotNil(t, c.nodeDuration)
	assert.NotNil(t, c.cacheHits)
	assert.NotNil(t, c.dbConnectionsOpen)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector()

	c.RecordHTTPRequest("GET", "/api/v1/graphs", 200, 15*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/v1/graphs", 200, 5*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/graphs", 422, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/graphs", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/graphs", "4xx")))
}

func TestCollector_RecordRun(t *testing.T) {
	c := newTestCollector()

	c.RecordRun("completed", 120*time.Millisecond, 4)
	c.RecordRun("completed", 80*time.Millisecond, 2)
	c.RecordRun("failed", 10*time.Millisecond, 1)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("failed")))
}

func TestCollector_RecordCache(t *testing.T) {
	c := newTestCollector()

	c.RecordCacheHit("run")
	c.RecordCacheHit("run")
	c.RecordCacheMiss("run")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheHits.WithLabelValues("run")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheMisses.WithLabelValues("run")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := newTestCollector()

	c.RecordDBConnections("workflow", 8, 3)
	assert.Equal(t, float64(8), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("workflow")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("workflow")))

	c.RecordDBConnections("workflow", 2, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("workflow")))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "2xx", statusText(204))
	assert.Equal(t, "3xx", statusText(301))
	assert.Equal(t, "4xx", statusText(404))
	assert.Equal(t, "5xx", statusText(503))
	assert.Equal(t, "1xx", statusText(101))
}
