// Package metrics is the Metrics Collector of spec.md §4.10: a rolling
// p50/p95/p99 latency window per operation, plus the same observations
// exposed as Prometheus histograms/counters on /metrics.
//
// No library in the example pack does rolling-quantile windows over a
// bounded ring buffer, so that half is plain Go; the exposition half reuses
// github.com/prometheus/client_golang exactly as the pack's metrics package
// does.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records operation durations and outcomes, both into an
// in-process rolling window (for Snapshot, used by the Gate and health
// route) and into Prometheus metrics (for the /metrics scrape endpoint).
type Collector struct {
	registry *prometheus.Registry

	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec

	mu      sync.RWMutex
	windows map[string]*ring
}

// NewCollector builds a Collector and registers its Prometheus metrics
// under the given namespace (e.g. "evident").
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "operation",
		Name:      "duration_seconds",
		Help:      "Duration of a named operation, in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "outcome"})

	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "operation",
		Name:      "total",
		Help:      "Count of completed operations by outcome.",
	}, []string{"operation", "outcome"})

	registry.MustRegister(duration, total)

	return &Collector{
		registry: registry,
		duration: duration,
		total:    total,
		windows:  make(map[string]*ring),
	}
}

// Observe records one completed operation. outcome is typically "success"
// or "failure"; callers should keep its cardinality small.
func (c *Collector) Observe(operation, outcome string, d time.Duration) {
	c.duration.WithLabelValues(operation, outcome).Observe(d.Seconds())
	c.total.WithLabelValues(operation, outcome).Inc()

	c.mu.RLock()
	w, ok := c.windows[operation]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		w, ok = c.windows[operation]
		if !ok {
			w = &ring{}
			c.windows[operation] = w
		}
		c.mu.Unlock()
	}
	w.add(d)
}

// OperationStats is a point-in-time read of one operation's rolling window.
type OperationStats struct {
	Count int     `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Snapshot returns the current rolling-window percentiles for every
// operation observed so far. Used internally by the Access & Quota Gate
// and the health route; never exposed verbatim over /metrics.
func (c *Collector) Snapshot() map[string]OperationStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationStats, len(c.windows))
	for op, w := range c.windows {
		out[op] = OperationStats{
			Count: w.observationCount(),
			P50Ms: w.percentile(50),
			P95Ms: w.percentile(95),
			P99Ms: w.percentile(99),
		}
	}
	return out
}

// Registry returns the Prometheus registry backing this collector's
// histograms and counters, for mounting a /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
