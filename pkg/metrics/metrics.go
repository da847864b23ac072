// Package metrics is a small Prometheus-text metrics registry: counters,
// gauges, and histograms with optional baked-in labels, served from a
// /metrics endpoint in the text exposition format.
package metrics

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets cover sub-second handler work up to multi-minute
// upstream queries, in seconds.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge is a value that can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks a distribution over fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *Histogram {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

// Since observes the duration since t, in seconds.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

func (h *Histogram) snapshot() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := append([]uint64(nil), h.counts...)
	return h.buckets, c, h.sum, h.count
}

type metricKind string

const (
	kindCounter   metricKind = "counter"
	kindGauge     metricKind = "gauge"
	kindHistogram metricKind = "histogram"
)

// entry is one registered metric line; labelled variants of the same base
// name share a family but are separate entries.
type entry struct {
	name      string // full name including labels
	base      string
	kind      metricKind
	help      string
	counter   *Counter
	gauge     *Gauge
	histogram *Histogram
}

// Registry holds named metrics and renders them in registration order.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	entries []*entry
	log     *slog.Logger
}

// New creates an empty registry. A nil logger discards server errors.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{byName: make(map[string]*entry), log: log}
}

func (r *Registry) register(name string, kind metricKind, help string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		return e
	}
	e := &entry{name: name, base: baseName(name), kind: kind, help: help}
	switch kind {
	case kindCounter:
		e.counter = &Counter{}
	case kindGauge:
		e.gauge = &Gauge{}
	}
	r.byName[name] = e
	r.entries = append(r.entries, e)
	return e
}

// Counter returns (or creates) the named counter.
func (r *Registry) Counter(name, help string) *Counter {
	return r.register(name, kindCounter, help).counter
}

// Gauge returns (or creates) the named gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.register(name, kindGauge, help).gauge
}

// Histogram returns (or creates) the named histogram. Nil buckets select
// DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	e := r.register(name, kindHistogram, help)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.histogram == nil {
		e.histogram = newHistogram(buckets)
	}
	return e.histogram
}

// WithLabels bakes label pairs into a metric name: WithLabels("q", "k", "v")
// renders `q{k="v"}`. Each label combination is a distinct metric.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i != -1 {
		return name[:i]
	}
	return name
}

func innerLabels(name string) string {
	i := strings.IndexByte(name, '{')
	if i == -1 {
		return ""
	}
	return name[i+1 : len(name)-1]
}

// Render produces the Prometheus text exposition output. HELP and TYPE
// headers appear once per metric family, in first-registration order.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	headered := make(map[string]bool)

	for _, e := range r.entries {
		if !headered[e.base] {
			headered[e.base] = true
			if e.help != "" {
				fmt.Fprintf(&b, "# HELP %s %s\n", e.base, e.help)
			}
			fmt.Fprintf(&b, "# TYPE %s %s\n", e.base, e.kind)
		}

		switch e.kind {
		case kindCounter:
			fmt.Fprintf(&b, "%s %d\n", e.name, e.counter.Value())
		case kindGauge:
			fmt.Fprintf(&b, "%s %d\n", e.name, e.gauge.Value())
		case kindHistogram:
			buckets, counts, sum, count := e.histogram.snapshot()
			labels := innerLabels(e.name)
			sep := ""
			if labels != "" {
				sep = ","
			}
			cumulative := uint64(0)
			for i, bk := range buckets {
				cumulative += counts[i]
				fmt.Fprintf(&b, "%s_bucket{le=\"%g\"%s%s} %d\n", e.base, bk, sep, labels, cumulative)
			}
			fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"%s%s} %d\n", e.base, sep, labels, count)
			fmt.Fprintf(&b, "%s_sum%s %g\n", e.base, wrapLabels(labels), sum)
			fmt.Fprintf(&b, "%s_count%s %d\n", e.base, wrapLabels(labels), count)
		}
	}
	return b.String()
}

func wrapLabels(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// Handler serves the rendered registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}

// Serve blocks serving /metrics (plus a trivial health root) on the port.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync starts Serve in a goroutine; errors are logged.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			r.log.Error("metrics server stopped", "port", port, "error", err)
		}
	}()
}
