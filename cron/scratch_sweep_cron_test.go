package cron

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type countingSweeper struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
	err    error
}

func (s *countingSweeper) Sweep(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.maxAge = maxAge
	return 3, s.err
}

type countingPruner struct{ calls int }

func (p *countingPruner) CleanupOldMetrics(time.Duration) int {
	p.calls++
	return 0
}

func TestStartRunsInitialSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	pruner := &countingPruner{}
	c := NewScratchSweepCron(sweeper, pruner, "@every 1h", 90*time.Minute)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	if sweeper.calls != 1 {
		t.Errorf("sweeps = %d, want 1", sweeper.calls)
	}
	if sweeper.maxAge != 90*time.Minute {
		t.Errorf("maxAge = %v", sweeper.maxAge)
	}
	if pruner.calls != 1 {
		t.Errorf("prunes = %d, want 1", pruner.calls)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	c := NewScratchSweepCron(&countingSweeper{}, nil, "not a schedule", time.Hour)
	if err := c.Start(); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunOnceSkipsPruneOnSweepError(t *testing.T) {
	pruner := &countingPruner{}
	c := NewScratchSweepCron(&countingSweeper{err: errors.New("readdir")}, pruner, "@every 1h", time.Hour)
	c.RunOnce()
	if pruner.calls != 0 {
		t.Errorf("prunes = %d, want 0", pruner.calls)
	}
}
