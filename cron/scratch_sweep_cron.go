package cron

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper removes scratch files older than maxAge.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// MetricsPruner drops run metrics older than maxAge.
type MetricsPruner interface {
	CleanupOldMetrics(maxAge time.Duration) int
}

// ScratchSweepCron deletes workspace files left behind by runs that never
// reached their cleanup, and prunes old run metrics.
type ScratchSweepCron struct {
	cron     *cron.Cron
	sweeper  Sweeper
	pruner   MetricsPruner
	schedule string
	maxAge   time.Duration
}

// NewScratchSweepCron creates a sweeper running on schedule. pruner may be nil.
func NewScratchSweepCron(sweeper Sweeper, pruner MetricsPruner, schedule string, maxAge time.Duration) *ScratchSweepCron {
	return &ScratchSweepCron{
		cron:     cron.New(),
		sweeper:  sweeper,
		pruner:   pruner,
		schedule: schedule,
		maxAge:   maxAge,
	}
}

// Start registers the job, starts the scheduler and runs one sweep immediately.
func (s *ScratchSweepCron) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return err
	}
	log.Info().Str("schedule", s.schedule).Dur("max_age", s.maxAge).Msg("Starting scratch sweep cron job")
	s.cron.Start()
	s.RunOnce()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *ScratchSweepCron) Stop() {
	log.Info().Msg("Stopping scratch sweep cron job")
	<-s.cron.Stop().Done()
}

// RunOnce performs a single sweep.
func (s *ScratchSweepCron) RunOnce() {
	start := time.Now()
	removed, err := s.sweeper.Sweep(s.maxAge)
	if err != nil {
		log.Error().Err(err).Msg("Scratch sweep failed")
		return
	}
	if s.pruner != nil {
		s.pruner.CleanupOldMetrics(s.maxAge)
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("took", time.Since(start)).Msg("Removed orphaned scratch files")
	}
}
