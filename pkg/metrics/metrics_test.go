package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New(nil)
	c := r.Counter("overpass_queries_total", "Spatial queries issued")
	if c.Value() != 0 {
		t.Fatalf("expected 0, got %d", c.Value())
	}
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("expected 7, got %d", c.Value())
	}
	// Same name returns the same counter.
	if r.Counter("overpass_queries_total", "") != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	r := New(nil)
	g := r.Gauge("trace_frontier_size", "")
	g.Set(42)
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("expected 43, got %d", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	r := New(nil)
	h := r.Histogram("query_duration_seconds", "", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(2.0)

	buckets, counts, sum, count := h.snapshot()
	if count != 4 || len(buckets) != 3 {
		t.Fatalf("count = %d, buckets = %d", count, len(buckets))
	}
	for i, want := range []uint64{1, 1, 1} {
		if counts[i] != want {
			t.Errorf("bucket %g: got %d, want %d", buckets[i], counts[i], want)
		}
	}
	if wantSum := 0.05 + 0.3 + 0.8 + 2.0; sum != wantSum {
		t.Fatalf("sum = %f, want %f", sum, wantSum)
	}
}

func TestHistogramSince(t *testing.T) {
	r := New(nil)
	h := r.Histogram("latency", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	_, _, _, count := h.snapshot()
	if count != 1 {
		t.Fatal("expected 1 observation")
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("plants_found_total", "channel", "network_trace")
	want := `plants_found_total{channel="network_trace"}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if WithLabels("bare") != "bare" {
		t.Fatal("no labels should return name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New(nil)
	r.Counter("queries_total", "Total queries").Add(10)
	r.Counter(WithLabels("queries_total", "stage", "layer"), "").Add(7)
	r.Counter(WithLabels("queries_total", "stage", "proximity"), "").Add(3)
	r.Gauge("frontier_size", "Pending lines").Set(5)
	h := r.Histogram("query_duration_seconds", "Query latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()
	for _, want := range []string{
		"# HELP queries_total Total queries",
		"# TYPE queries_total counter",
		"queries_total 10",
		`queries_total{stage="layer"} 7`,
		`queries_total{stage="proximity"} 3`,
		"# TYPE frontier_size gauge",
		"frontier_size 5",
		"# TYPE query_duration_seconds histogram",
		`query_duration_seconds_bucket{le="0.1"} 1`,
		`query_duration_seconds_bucket{le="0.5"} 2`,
		`query_duration_seconds_bucket{le="+Inf"} 2`,
		"query_duration_seconds_sum 0.35",
		"query_duration_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// The family header appears once even with labelled variants.
	if strings.Count(out, "# TYPE queries_total counter") != 1 {
		t.Error("duplicate TYPE header for labelled family")
	}
}

func TestRenderLabelledHistogram(t *testing.T) {
	r := New(nil)
	h := r.Histogram(WithLabels("stage_seconds", "stage", "seed"), "", []float64{1})
	h.Observe(0.5)

	out := r.Render()
	for _, want := range []string{
		`stage_seconds_bucket{le="1",stage="seed"} 1`,
		`stage_seconds_sum{stage="seed"} 0.5`,
		`stage_seconds_count{stage="seed"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New(nil)
	r.Counter("traces_total", "").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "traces_total 1") {
		t.Error("missing metric in handler output")
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo_total", "foo_total"},
		{`foo_total{k="v"}`, "foo_total"},
		{`foo{a="1",b="2"}`, "foo"},
	}
	for _, tt := range tests {
		if got := baseName(tt.in); got != tt.want {
			t.Errorf("baseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
