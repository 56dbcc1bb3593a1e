package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_ObserveUpdatesPrometheusMetrics(t *testing.T) {
	c := NewCollector("test")

	c.Observe("transcribe", "success", 120*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.total.WithLabelValues("transcribe", "success")))
}

func TestCollector_SnapshotComputesPercentiles(t *testing.T) {
	c := NewCollector("test")

	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		100 * time.Millisecond,
	}
	for _, d := range durations {
		c.Observe("analyze", "success", d)
	}

	snap := c.Snapshot()
	stats, ok := snap["analyze"]
	assert.True(t, ok)
	assert.Equal(t, 5, stats.Count)
	assert.Greater(t, stats.P99Ms, stats.P50Ms)
}

func TestCollector_SnapshotEmptyForUnobservedOperation(t *testing.T) {
	c := NewCollector("test")
	snap := c.Snapshot()
	_, ok := snap["never-called"]
	assert.False(t, ok)
}

func TestRing_WrapsAtCapacity(t *testing.T) {
	r := &ring{}
	for i := 0; i < windowSize+10; i++ {
		r.add(time.Millisecond)
	}
	assert.Equal(t, windowSize, r.observationCount())
}
