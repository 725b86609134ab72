// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for chatpilot. It renders the text exposition format without
// pulling in prometheus/client_golang.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// Registry holds counters, gauges and histograms keyed by name and labels.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

type meta struct {
	name   string
	help   string
	labels string
}

func (m meta) series(suffix string, extraLabels ...string) string {
	labels := m.labels
	for _, l := range extraLabels {
		if labels != "" {
			labels += ","
		}
		labels += l
	}
	if labels == "" {
		return m.name + suffix
	}
	return m.name + suffix + "{" + labels + "}"
}

// Counter is a monotonically increasing counter.
type Counter struct {
	meta
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	meta
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values over fixed buckets.
type Histogram struct {
	meta
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records v. Bucket counts are cumulative, as Prometheus expects.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns the counter registered under name and labels, creating it
// on first use.
func (r *Registry) Counter(name, help, labels string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if c, ok := r.counters[k]; ok {
		return c
	}
	c := &Counter{meta: meta{name, help, labels}}
	r.counters[k] = c
	return c
}

// Gauge returns the gauge registered under name and labels, creating it on
// first use.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if g, ok := r.gauges[k]; ok {
		return g
	}
	g := &Gauge{meta: meta{name, help, labels}}
	r.gauges[k] = g
	return g
}

// Histogram returns the histogram registered under name and labels. The
// bucket bounds of the first registration win.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if h, ok := r.histograms[k]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	h := &Histogram{meta: meta{name, help, labels}, bounds: b, buckets: make([]int64, len(b))}
	r.histograms[k] = h
	return h
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteText renders every metric in Prometheus text format, sorted by
// series name so output is stable.
func (r *Registry) WriteText(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	header := func(seen map[string]bool, m meta, typ string) {
		if seen[m.name] {
			return
		}
		seen[m.name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", m.name, m.help, m.name, typ)
	}

	fmt.Fprintf(&sb, "# HELP chatpilot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE chatpilot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "chatpilot_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	seen := make(map[string]bool)
	for _, k := range sortedKeys(r.counters) {
		c := r.counters[k]
		header(seen, c.meta, "counter")
		fmt.Fprintf(&sb, "%s %d\n", c.series(""), c.Value())
	}
	for _, k := range sortedKeys(r.gauges) {
		g := r.gauges[k]
		header(seen, g.meta, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", g.series(""), g.Value())
	}
	for _, k := range sortedKeys(r.histograms) {
		h := r.histograms[k]
		header(seen, h.meta, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			fmt.Fprintf(&sb, "%s %d\n", h.series("_bucket", fmt.Sprintf("le=%q", bound)), h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s %d\n", h.series("_bucket", `le="+Inf"`), h.count)
		fmt.Fprintf(&sb, "%s %d\n", h.series("_count"), h.count)
		fmt.Fprintf(&sb, "%s %f\n", h.series("_sum"), h.sum)
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Handler serves WriteText over HTTP.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = r.WriteText(w)
	}
}

// --- Pre-defined metrics used across the application ---

var (
	ChallengesTotal  = Collector.Counter("chatpilot_security_challenges_total", "Security challenge pages observed", "")
	LinksShortened   = Collector.Counter("chatpilot_links_shortened_total", "Tracked links upserted", "")
	LinksResolved    = Collector.Counter("chatpilot_links_resolved_total", "Tracked link redirects resolved", "")
	ActiveDeliveries = Collector.Gauge("chatpilot_active_deliveries", "Deliveries currently holding a browser session", "")

	DeliveryLatency = Collector.Histogram("chatpilot_delivery_latency_seconds", "End-to-end sendMessage latency in seconds", "",
		[]float64{1, 2, 5, 10, 20, 30, 60, 120})
)

// DeliveryOutcome returns the delivery counter for an outcome label
// ("success" or an error kind such as "send_unconfirmed").
func DeliveryOutcome(outcome string) *Counter {
	return Collector.Counter("chatpilot_deliveries_total", "Deliveries by outcome", fmt.Sprintf("outcome=%q", outcome))
}
