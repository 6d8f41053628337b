// Package metrics is a small in-process metrics registry that renders in the
// Prometheus text exposition format. It carries no client_golang dependency:
// counters, gauges, and histograms are plain atomics behind a registry that
// knows how to print itself on /metrics.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets cover request latencies from 5ms to 1 minute, in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter only goes up.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(d int64)  { c.n.Add(d) }
func (c *Counter) Value() int64 { return c.n.Load() }

// Gauge goes up and down.
type Gauge struct{ n atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

// Histogram records observations into fixed upper-bound buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	hits   []uint64
	sum    float64
	count  uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{bounds: b, hits: make([]uint64, len(b))}
}

// Observe records one value. Buckets store per-bucket hits; rendering
// accumulates them into the cumulative counts Prometheus expects.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.bounds {
		if v <= bound {
			h.hits[i]++
			return
		}
	}
}

// Since observes the elapsed seconds since start.
func (h *Histogram) Since(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// family is one named metric plus its metadata.
type family struct {
	name string
	help string
	kind string
	c    *Counter
	g    *Gauge
	h    *Histogram
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families []*family
	byName   map[string]*family
}

func New() *Registry {
	return &Registry{byName: make(map[string]*family)}
}

func (r *Registry) lookup(name, help, kind string) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.byName[name]; ok {
		return f
	}
	f := &family{name: name, help: help, kind: kind}
	r.byName[name] = f
	r.families = append(r.families, f)
	return f
}

// Counter registers (or fetches) a counter by name.
func (r *Registry) Counter(name, help string) *Counter {
	f := r.lookup(name, help, "counter")
	if f.c == nil {
		f.c = &Counter{}
	}
	return f.c
}

// Gauge registers (or fetches) a gauge by name.
func (r *Registry) Gauge(name, help string) *Gauge {
	f := r.lookup(name, help, "gauge")
	if f.g == nil {
		f.g = &Gauge{}
	}
	return f.g
}

// Histogram registers (or fetches) a histogram. Nil buckets means
// DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	f := r.lookup(name, help, "histogram")
	if f.h == nil {
		f.h = newHistogram(buckets)
	}
	return f.h
}

// Render prints every family in the Prometheus text format, in registration
// order.
func (r *Registry) Render() string {
	r.mu.Lock()
	fams := append([]*family(nil), r.families...)
	r.mu.Unlock()

	var b strings.Builder
	for _, f := range fams {
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", f.name, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", f.name, f.kind)
		switch f.kind {
		case "counter":
			fmt.Fprintf(&b, "%s %d\n", f.name, f.c.Value())
		case "gauge":
			fmt.Fprintf(&b, "%s %d\n", f.name, f.g.Value())
		case "histogram":
			f.h.mu.Lock()
			var cum uint64
			for i, bound := range f.h.bounds {
				cum += f.h.hits[i]
				fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", f.name, bound, cum)
			}
			fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", f.name, f.h.count)
			fmt.Fprintf(&b, "%s_sum %g\n", f.name, f.h.sum)
			fmt.Fprintf(&b, "%s_count %d\n", f.name, f.h.count)
			f.h.mu.Unlock()
		}
	}
	return b.String()
}

// Handler serves the rendered registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}

// Serve blocks serving /metrics on the given port.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync serves /metrics from a goroutine so worker mains can fire and
// forget.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			fmt.Printf("metrics server error on port %d: %v\n", port, err)
		}
	}()
}
