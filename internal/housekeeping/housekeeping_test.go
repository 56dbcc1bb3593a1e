package housekeeping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DTMBX/evident/internal/ratebucket"
)

func TestNewScheduler_RegistersOneJob(t *testing.T) {
	s := NewScheduler(ratebucket.New())
	require.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_StartStopIsSafe(t *testing.T) {
	s := NewScheduler(ratebucket.New())
	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()
}

func TestScheduler_JobCompactsStaleBuckets(t *testing.T) {
	buckets := ratebucket.New()
	buckets.Allow("user1:upload", 5, 1)
	require.Equal(t, 1, buckets.Len())

	s := NewScheduler(buckets)
	job := s.cron.Entries()[0].Job
	job.Run()

	// A bucket touched moments ago is well within the 24h cutoff, so the
	// job must not have evicted it.
	assert.Equal(t, 1, buckets.Len())
}
