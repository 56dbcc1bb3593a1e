// Package housekeeping runs the periodic maintenance jobs a long-lived
// Evident API process needs beyond request handling, grounded on the
// teacher's cron.New()/scheduler.Start()/scheduler.Stop() plugin
// scheduler shape in api/internal/plugins/runtime.go.
package housekeeping

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/ratebucket"
)

// Scheduler owns the process's background maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler builds a Scheduler and registers every job. buckets is
// compacted hourly, evicting any rate-limit bucket untouched for over a
// day — the only maintenance this service needs beyond request
// handling: usage counters are already scoped by year-month key
// (internal/db.UsageDB), so they never need an active rollover job, and
// internal/cache.MemoryCache expires entries lazily on read rather than
// through a background sweep.
func NewScheduler(buckets *ratebucket.Buckets) *Scheduler {
	c := cron.New()
	log := logger.GetLogger()

	c.AddFunc("@hourly", func() {
		cutoff := time.Now().Add(-24 * time.Hour)
		n := buckets.Compact(cutoff)
		if n > 0 {
			log.Info().Int("evicted", n).Msg("compacted stale rate-limit buckets")
		}
	})

	return &Scheduler{cron: c}
}

// Start runs the scheduler's jobs in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for any in-flight job to finish, then halts the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
