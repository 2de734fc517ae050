package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StageTiming is the measured duration of one pipeline stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// RunMetrics tracks timing for the stages of one assembly run
type RunMetrics struct {
	RunKey        string
	StartTime     time.Time
	Stages        []StageTiming
	FailedStage   string
	TotalDuration time.Duration
	current       string
	currentStart  time.Time
	finalized     bool
	mu            sync.Mutex
}

// NewRunMetrics creates a new metrics instance
func NewRunMetrics(runKey string) *RunMetrics {
	return &RunMetrics{
		RunKey:    runKey,
		StartTime: time.Now(),
	}
}

// StartStage marks the start of stage, closing any stage still open.
func (m *RunMetrics) StartStage(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	m.current = stage
	m.currentStart = time.Now()
	log.Debug().Str("run", m.RunKey).Str("stage", stage).Msg("Stage started")
}

// EndStage marks the end of the open stage
func (m *RunMetrics) EndStage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// FailStage records the open stage as the one that aborted the run.
func (m *RunMetrics) FailStage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedStage = m.current
	m.closeLocked()
}

func (m *RunMetrics) closeLocked() {
	if m.current == "" {
		return
	}
	d := time.Since(m.currentStart)
	m.Stages = append(m.Stages, StageTiming{Stage: m.current, Duration: d})
	log.Debug().Str("run", m.RunKey).Str("stage", m.current).Dur("took", d).Msg("Stage completed")
	m.current = ""
}

// Finalize calculates total duration and logs summary
func (m *RunMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return
	}
	m.closeLocked()
	m.finalized = true
	m.TotalDuration = time.Since(m.StartTime)

	ev := log.Info()
	if m.FailedStage != "" {
		ev = log.Warn().Str("failed_stage", m.FailedStage)
	}
	for _, s := range m.Stages {
		ev = ev.Dur(s.Stage, s.Duration)
	}
	ev.Str("run", m.RunKey).Dur("total", m.TotalDuration).Msg("Assembly run finished")
}

// Snapshot returns a copy of the recorded stage timings.
func (m *RunMetrics) Snapshot() []StageTiming {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StageTiming(nil), m.Stages...)
}

// GetSummary returns a formatted summary of all metrics
func (m *RunMetrics) GetSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Assembly metrics for %s:\n", m.RunKey)
	fmt.Fprintf(&b, "  Total Duration: %v\n", m.TotalDuration)
	for _, s := range m.Stages {
		fmt.Fprintf(&b, "  %s: %v\n", s.Stage, s.Duration)
	}
	if m.FailedStage != "" {
		fmt.Fprintf(&b, "  Failed at: %s\n", m.FailedStage)
	}
	return b.String()
}

// Collector manages metrics for multiple runs
type Collector struct {
	metrics map[string]*RunMetrics
	mu      sync.RWMutex
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		metrics: make(map[string]*RunMetrics),
	}
}

// StartRun creates metrics for a new run
func (c *Collector) StartRun(runKey string) *RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := NewRunMetrics(runKey)
	c.metrics[runKey] = m
	return m
}

// GetMetrics retrieves metrics for a run
func (c *Collector) GetMetrics(runKey string) *RunMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.metrics[runKey]
}

// Len returns the number of tracked runs.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.metrics)
}

// CleanupOldMetrics removes metrics older than the specified duration
func (c *Collector) CleanupOldMetrics(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for runKey, m := range c.metrics {
		if now.Sub(m.StartTime) > maxAge {
			delete(c.metrics, runKey)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Cleaned up old run metrics")
	}
	return removed
}
