package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounter_SameSeriesIsShared(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("test_total", "help", `k="v"`)
	b := c.Counter("test_total", "help", `k="v"`)
	a.Inc()
	b.Add(2)
	require.Same(t, a, b)
	require.EqualValues(t, 3, a.Value())
}

func TestGauge_IncDec(t *testing.T) {
	g := NewMetricsCollector().Gauge("test_gauge", "help", "")
	g.Inc()
	g.Inc()
	g.Dec()
	require.EqualValues(t, 1, g.Value())
	g.Set(10)
	require.EqualValues(t, 10, g.Value())
}

func TestHistogram_AddsInfBucket(t *testing.T) {
	h := NewMetricsCollector().Histogram("test_seconds", "help", "", []float64{1, 0.5})
	require.Len(t, h.buckets, 3)
	require.Equal(t, 0.5, h.buckets[0].le)

	h.Observe(0.2)
	h.Observe(3)
	require.EqualValues(t, 2, h.Count())
	require.EqualValues(t, 1, h.buckets[0].count)
	require.EqualValues(t, 2, h.buckets[2].count)
}

func TestRender_PrometheusFormat(t *testing.T) {
	req := require.New(t)
	c := NewMetricsCollector()
	c.Counter("test_outcomes_total", "Outcomes", `state="replied"`).Inc()
	c.Counter("test_outcomes_total", "Outcomes", `state="ignored"`).Add(2)
	c.Histogram("test_latency_seconds", "Latency", `step="upload"`, []float64{1}).Observe(0.5)

	out := c.Render()
	req.Equal(1, strings.Count(out, "# HELP test_outcomes_total"))
	req.Contains(out, `test_outcomes_total{state="ignored"} 2`)
	req.Contains(out, `test_outcomes_total{state="replied"} 1`)
	req.Less(strings.Index(out, `state="ignored"`), strings.Index(out, `state="replied"`))
	req.Contains(out, `test_latency_seconds_bucket{step="upload",le="1"} 1`)
	req.Contains(out, `test_latency_seconds_bucket{step="upload",le="+Inf"} 1`)
	req.Contains(out, `test_latency_seconds_count{step="upload"} 1`)
	req.Contains(out, "imagebot_uptime_seconds")
}

func TestHandler_ContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMetricsCollector().Handler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
}

func TestOutcomeAndStepFailure_Labels(t *testing.T) {
	Outcome("replied").Inc()
	StepFailure("upload").Inc()
	out := Collector.Render()
	require.Contains(t, out, `imagebot_webhook_outcomes_total{state="replied"}`)
	require.Contains(t, out, `imagebot_step_failures_total{step="upload"}`)
}
