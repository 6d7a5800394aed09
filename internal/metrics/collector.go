// Package metrics provides a small Prometheus-compatible collector for the
// webhook server. Output is text/plain in the Prometheus exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector holds every imagebot series and backs the /metrics endpoint.
var Collector = NewMetricsCollector()

// MetricsCollector keeps series keyed by name plus label set.
type MetricsCollector struct {
	counters   sync.Map // seriesKey -> *Counter
	gauges     sync.Map // seriesKey -> *Gauge
	histograms sync.Map // seriesKey -> *Histogram
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime is reported as imagebot_uptime_seconds.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter only goes up; webhook and failure totals use it.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge tracks a level, such as pipelines in flight.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram buckets observations cumulatively. The last bucket is always
// +Inf so that it equals the observation count.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func seriesKey(name, labels string) string {
	return name + "{" + labels + "}"
}

// Counter registers the series on first use and returns the same instance
// afterwards. help of later calls is ignored.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := seriesKey(name, labels)
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := seriesKey(name, labels)
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	actual, _ := c.gauges.LoadOrStore(key, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Histogram uses buckets only when the series is created.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := seriesKey(name, labels)
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = append(bounds, math.Inf(1))
	}
	hb := make([]histBucket, len(bounds))
	for i, b := range bounds {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: hb}
	actual, _ := c.histograms.LoadOrStore(key, h)
	return actual.(*Histogram)
}

// Handler serves Render as Prometheus text exposition format 0.0.4.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

// Render returns all series sorted by name and labels, with one HELP/TYPE
// header per metric name.
func (c *MetricsCollector) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP imagebot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE imagebot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "imagebot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	header := func(name, help, kind string, written map[string]bool) {
		if written[name] {
			return
		}
		written[name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", name, kind)
	}

	written := make(map[string]bool)
	for _, key := range sortedKeys(&c.counters) {
		v, _ := c.counters.Load(key)
		ctr := v.(*Counter)
		header(ctr.name, ctr.help, "counter", written)
		fmt.Fprintf(&sb, "%s %d\n", series(ctr.name, ctr.labels), ctr.Value())
	}

	for _, key := range sortedKeys(&c.gauges) {
		v, _ := c.gauges.Load(key)
		g := v.(*Gauge)
		header(g.name, g.help, "gauge", written)
		fmt.Fprintf(&sb, "%s %d\n", series(g.name, g.labels), g.Value())
	}

	for _, key := range sortedKeys(&c.histograms) {
		v, _ := c.histograms.Load(key)
		h := v.(*Histogram)
		header(h.name, h.help, "histogram", written)

		h.mu.Lock()
		sep := ""
		if h.labels != "" {
			sep = ","
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{%s%sle=\"%s\"} %d\n", h.name, h.labels, sep, le, b.count)
		}
		fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(&sb, "%s %g\n", series(h.name+"_sum", h.labels), h.sum)
		h.mu.Unlock()
	}

	return sb.String()
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func sortedKeys(m *sync.Map) []string {
	var keys []string
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// --- Pre-defined metrics used across the application ---

var stepBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

var (
	WebhooksReceived = Collector.Counter("imagebot_webhooks_received_total", "Webhook requests received", "")
	InvalidPayloads  = Collector.Counter("imagebot_webhooks_invalid_total", "Webhook requests rejected as invalid", "")
	InFlight         = Collector.Gauge("imagebot_pipelines_in_flight", "Image pipelines currently running", "")

	DownloadLatency = Collector.Histogram("imagebot_step_latency_seconds", "Pipeline step latency in seconds", `step="download"`, stepBuckets)
	UploadLatency   = Collector.Histogram("imagebot_step_latency_seconds", "Pipeline step latency in seconds", `step="upload"`, stepBuckets)
	ReplyLatency    = Collector.Histogram("imagebot_step_latency_seconds", "Pipeline step latency in seconds", `step="reply"`, stepBuckets)
)

// Outcome returns the counter for webhooks that ended in the given state.
func Outcome(state string) *Counter {
	return Collector.Counter("imagebot_webhook_outcomes_total", "Webhook requests by terminal state", fmt.Sprintf("state=%q", state))
}

// StepFailure returns the counter for failures of a pipeline step.
func StepFailure(step string) *Counter {
	return Collector.Counter("imagebot_step_failures_total", "Pipeline step failures", fmt.Sprintf("step=%q", step))
}
