package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("endpointify", reg, zap.NewNop())

	c.RecordExtraction("demo_cache", 2*time.Millisecond)
	c.RecordExtraction("demo_cache", time.Millisecond)
	c.RecordExtraction("heuristic", time.Second)
	c.RecordTierFailure("capture")
	c.RecordWarmRefresh("skipped")
	c.RecordHTTPRequest("POST", "/endpointify", 400)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.extractionsTotal.WithLabelValues("demo_cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.extractionsTotal.WithLabelValues("heuristic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tierFailures.WithLabelValues("capture")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.warmRefreshes.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/endpointify", "4xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.extractionDuration))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordExtraction("live", time.Second)
		c.RecordTierFailure("vision")
		c.RecordWarmRefresh("ok")
		c.RecordHTTPRequest("GET", "/health", 200)
	})
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(502))
}
